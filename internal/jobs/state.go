package jobs

// Phase is the tag of a job State.
type Phase string

const (
	PhaseReady            Phase = "ready"
	PhaseFetchingMetadata Phase = "fetching_metadata"
	PhaseRunning          Phase = "running"
	PhaseSuccess          Phase = "success"
	PhasePartialSuccess   Phase = "partial_success"
	PhaseFailed           Phase = "failed"
)

// Terminal reports whether no further transition can happen without a new
// Enqueue.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhasePartialSuccess || p == PhaseFailed
}

// Failure is one failed item of a pipeline run. Image downloads fill URL,
// gallery downloads fill GalleryID and Index.
type Failure struct {
	URL       string `json:"url,omitempty"`
	GalleryID int64  `json:"gid,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Error     string `json:"error"`
}

// State is the latest observable state of one job key. Which counters are
// meaningful depends on Phase and on the job kind.
type State struct {
	Phase Phase

	// Fetched counts items saved by a feed sync.
	Fetched int

	// Total, Success and Failure count pipeline items, or preview pages
	// while fetching gallery metadata.
	Total   int
	Success int
	Failure int

	Failures []Failure
	Err      string
}

func Ready() State {
	return State{Phase: PhaseReady}
}

// FetchingMetadata reports gallery metadata progress in pages.
func FetchingMetadata(totalPages, fetchedPages int) State {
	return State{Phase: PhaseFetchingMetadata, Total: totalPages, Success: fetchedPages}
}

// Running reports pipeline progress.
func Running(total, success, failure int) State {
	return State{Phase: PhaseRunning, Total: total, Success: success, Failure: failure}
}

// Syncing reports feed sync progress.
func Syncing(fetched int) State {
	return State{Phase: PhaseRunning, Fetched: fetched}
}

func Success(total int) State {
	return State{Phase: PhaseSuccess, Total: total, Success: total}
}

// Synced is the terminal state of a feed sync.
func Synced(fetched int) State {
	return State{Phase: PhaseSuccess, Fetched: fetched}
}

func PartialSuccess(total int, failures []Failure) State {
	return State{
		Phase:    PhasePartialSuccess,
		Total:    total,
		Success:  total - len(failures),
		Failure:  len(failures),
		Failures: failures,
	}
}

func Failed(err error) State {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return State{Phase: PhaseFailed, Err: msg}
}

// Finish picks Success or PartialSuccess for a pipeline of total items.
func Finish(total int, failures []Failure) State {
	if len(failures) == 0 {
		return Success(total)
	}
	return PartialSuccess(total, failures)
}
