package ingest

// Status is the lifecycle state of an upload session.
type Status int

const (
	StatusIdle Status = iota
	StatusValidating
	StatusUploading
	StatusAwaitingProgress
	StatusProcessing
	StatusFetchingResult
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusIdle:             "idle",
	StatusValidating:       "validating",
	StatusUploading:        "uploading",
	StatusAwaitingProgress: "awaiting progress",
	StatusProcessing:       "processing",
	StatusFetchingResult:   "fetching result",
	StatusSucceeded:        "succeeded",
	StatusFailed:           "failed",
	StatusCancelled:        "cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further automatic transitions occur from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
