// Package screenshot declares the screen-capture contract used by the
// OCR-region and realtime translation pipelines. The concrete capture
// backend (portal-based on Wayland, a platform API elsewhere) is an
// explicit non-goal; this package only fixes the interface every caller
// depends on. Capture participates in the OCR call's 1.5 s budget and
// the realtime loop's 500 ms tick, but the deadline is enforced by each
// call site rather than by this interface.
package screenshot

import "context"

// Region restricts a capture to a sub-rectangle of the screen, in screen
// coordinates. A nil Region means "capture the full screen".
type Region struct {
	X, Y, W, H int
}

// Frame is one captured still image, encoded as PNG bytes ready to hand
// to the OCR worker or serialize as base64 for `get_screenshot_base64`.
type Frame struct {
	PNG    []byte
	Region *Region
}

// Capturer captures a still frame of the screen or a sub-region of it.
// Implementations are expected to honor ctx's deadline; a caller
// enforces the wall-clock budget for the call site it's used from rather
// than this interface prescribing one itself, since the budget differs
// between a one-shot OCR capture and a realtime tick.
type Capturer interface {
	Capture(ctx context.Context, region *Region) (Frame, error)
}
