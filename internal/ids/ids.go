// Package ids mints the identifiers threaded through every event and
// job in the control plane: a trace_id per wake cycle, a request_id per
// job submitted within that cycle, and the generation number the job
// was issued against. Grounded on the uuid.New().String()
// idiom used throughout satriahrh-arunika (adapters/memory_device.go)
// and Zoex2304-notefiber-be-beta (cmd/seed_ai_config/main.go) for
// externally-visible identifiers.
package ids

import "github.com/google/uuid"

// RequestIds is the (trace_id, request_id, generation) triple carried by
// every event and job in the pipeline. trace_id is generated once per
// wake cycle and shared by every job spawned within it; request_id is
// generated once per individual job (capture, OCR call, translate call,
// render).
type RequestIds struct {
	TraceID    string
	RequestID  string
	Generation uint64
}

// NewTrace mints a fresh trace_id for a new wake cycle.
func NewTrace() string {
	return uuid.NewString()
}

// NewRequest mints a request_id for one job within traceID, tagging it
// with the generation the job's guard was issued against.
func NewRequest(traceID string, generation uint64) RequestIds {
	return RequestIds{
		TraceID:    traceID,
		RequestID:  uuid.NewString(),
		Generation: generation,
	}
}

// WithRequest derives a new RequestIds sharing r's trace_id and
// generation but minting a fresh request_id, for a child job spawned
// from an existing one (e.g. OCR handing recognized text to translate).
func (r RequestIds) WithRequest() RequestIds {
	return RequestIds{
		TraceID:    r.TraceID,
		RequestID:  uuid.NewString(),
		Generation: r.Generation,
	}
}
