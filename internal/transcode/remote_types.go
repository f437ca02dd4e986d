package transcode

// RemoteStatus is a job state reported by the transcode service.
type RemoteStatus string

// Job states reported by the transcode service.
const (
	RemoteInQueue   RemoteStatus = "IN_QUEUE"
	RemoteRunning   RemoteStatus = "RUNNING"
	RemoteCompleted RemoteStatus = "COMPLETED"
	RemoteFailed    RemoteStatus = "FAILED"
	RemoteCancelled RemoteStatus = "CANCELLED"
	RemoteTimedOut  RemoteStatus = "TIMED_OUT"
)

// IsTerminal returns true if the status is a terminal state.
func (s RemoteStatus) IsTerminal() bool {
	switch s {
	case RemoteCompleted, RemoteFailed, RemoteCancelled, RemoteTimedOut:
		return true
	default:
		return false
	}
}

// uploadResponse is returned by POST /inputs.
type uploadResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// jobRequest is the body of POST /jobs.
type jobRequest struct {
	InputID      string  `json:"input_id"`
	TrimStart    float64 `json:"trim_start"`
	TrimDuration float64 `json:"trim_duration"`
	OutputFormat string  `json:"output_format"`
	OutputName   string  `json:"output_name"`
	FilterGraph  string  `json:"filter_graph,omitempty"`
}

// jobResponse is returned by POST /jobs and GET /jobs/{id}.
type jobResponse struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}
