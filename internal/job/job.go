package job

import "encoding/json"

// Job is the message that tracks one media item through the pipeline.
// The schema is additive-only: gateway and workers deploy independently,
// so fields may be added but never renamed or repurposed.
type Job struct {
	VideoFID string `json:"video_fid"`
	Mp3FID   string `json:"mp3_fid,omitempty"`
	Username string `json:"username"`
}

func (j Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

func Unmarshal(body []byte) (Job, error) {
	var j Job
	err := json.Unmarshal(body, &j)
	return j, err
}

type Status string

const (
	StatusSubmitted    Status = "submitted"
	StatusConverting   Status = "converting"
	StatusCompleted    Status = "completed"
	StatusDeadLettered Status = "dead_lettered"
)

// transitions holds the legal status moves. A job that was dead-lettered
// or completed stays that way; redelivery may re-enter converting.
var transitions = map[Status][]Status{
	StatusSubmitted:  {StatusConverting, StatusDeadLettered},
	StatusConverting: {StatusConverting, StatusCompleted, StatusDeadLettered},
}

// CanTransition reports whether moving from one status to another is legal.
// An empty "from" means the record does not exist yet.
func CanTransition(from, to Status) bool {
	if from == "" {
		return to == StatusSubmitted
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
