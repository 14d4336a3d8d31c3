package uploader

import "fmt"

// Stage identifies where in the pipeline a progress event was emitted.
type Stage string

const (
	StageFiltering      Stage = "filtering"
	StageAnalyzing      Stage = "analyzing"
	StageProvisioning   Stage = "provisioning"
	StageRequestingURLs Stage = "requesting_urls"
	StageTransferring   Stage = "transferring"
	StageNotifying      Stage = "notifying"
	StageComplete       Stage = "complete"
	StageError          Stage = "error"
)

// ProgressEvent is one frame of the progress stream. Transient, never
// persisted. Percentage is 0–100 and non-decreasing across one call's
// stream; every stream ends in either StageComplete or StageError.
type ProgressEvent struct {
	Stage      Stage
	Message    string
	Percentage float64
	Detail     string
}

// emitter serializes events to the caller's channel and enforces the
// non-decreasing percentage invariant. A nil channel drops everything.
type emitter struct {
	ch   chan<- ProgressEvent
	last float64
}

func newEmitter(ch chan<- ProgressEvent) *emitter {
	return &emitter{ch: ch}
}

func (e *emitter) emit(stage Stage, message string, percentage float64, detail string) {
	if percentage < e.last {
		percentage = e.last
	}
	e.last = percentage
	if e.ch == nil {
		return
	}
	e.ch <- ProgressEvent{Stage: stage, Message: message, Percentage: percentage, Detail: detail}
}

func (e *emitter) stage(stage Stage, message string, percentage float64) {
	e.emit(stage, message, percentage, "")
}

// close closes the caller's channel, marking the end of the stream.
func (e *emitter) close() {
	if e.ch != nil {
		close(e.ch)
	}
}

// transferProgress maps completed transfer units (whole files, or fractions
// of a multipart file) onto the transfer band. done may be fractional.
func (e *emitter) transferProgress(done float64, total int) {
	if total == 0 {
		return
	}
	pct := pctTransferStart + (pctTransferEnd-pctTransferStart)*done/float64(total)
	e.emit(StageTransferring, fmt.Sprintf("transferring files (%d total)", total), pct, "")
}

// Percentage milestones of the fixed pipeline stages. Transfers span the
// widest band since they dominate wall time.
const (
	pctFiltering     = 5.0
	pctAnalyzing     = 10.0
	pctProvisioning  = 20.0
	pctRequesting    = 30.0
	pctTransferStart = 30.0
	pctTransferEnd   = 90.0
	pctNotifying     = 95.0
	pctComplete      = 100.0
)
