package uiserver

// Command names accepted from a UI client.
const (
	CmdGetState            = "get_state"
	CmdGetMetricsSummary   = "get_metrics_summary"
	CmdSelectMode          = "select_mode"
	CmdCancelCurrent       = "cancel_current"
	CmdDismiss             = "dismiss"
	CmdGetScreenshotBase64 = "get_screenshot_base64"
	CmdSubmitOCRSelection  = "submit_ocr_selection"
	CmdCancelOCRCapture    = "cancel_ocr_capture"
	CmdStopRealtime        = "stop_realtime"
	CmdGetHistory          = "get_history"
)

// Event names pushed to every connected UI client.
const (
	EventWakeDetected      = "wake-detected"
	EventWakeConfirmed     = "wake-confirmed"
	EventWakeRejected      = "wake-rejected"
	EventForceCancel       = "force-cancel"
	EventCaptureComplete   = "capture-complete"
	EventCaptureError      = "capture-error"
	EventOCRStarted        = "ocr-started"
	EventOCRComplete       = "ocr-complete"
	EventOCRError          = "ocr-error"
	EventTranslateChunk    = "translate-chunk"
	EventTranslateComplete = "translate-complete"
	EventTranslateError    = "translate-error"
	EventRealtimeStarted   = "realtime-started"
	EventRealtimeUpdate    = "realtime-update"
	EventRealtimeError     = "realtime-error"
	EventRealtimeStopped   = "realtime-stopped"
)

// Command is one inbound request from a UI client. ID is echoed back on
// the matching Response so a client can correlate async replies; a
// client that doesn't care about correlation may leave it empty.
type Command struct {
	ID      string         `json:"id,omitempty"`
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response answers exactly one Command.
type Response struct {
	ID     string `json:"id,omitempty"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Event is an unsolicited server-to-client push.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// envelope tags every outbound frame so a client can distinguish a
// Response from an Event without probing the payload shape.
type envelope struct {
	Kind string `json:"kind"`
	*Response
	*Event
}

func responseEnvelope(r Response) envelope {
	return envelope{Kind: "response", Response: &r}
}

func eventEnvelope(e Event) envelope {
	return envelope{Kind: "event", Event: &e}
}
