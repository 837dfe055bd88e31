package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SizePresets lists the accepted poster size presets. "auto" lets the
// renderer pick a radius from the city's footprint.
var SizePresets = []string{"auto", "city", "district", "neighborhood"}

// ValidSize reports whether the given size preset is accepted.
func ValidSize(size string) bool {
	for _, s := range SizePresets {
		if s == size {
			return true
		}
	}
	return false
}

// Radius bounds in meters for an explicit request radius.
const (
	MinRadiusMeters = 500
	MaxRadiusMeters = 30000
)

// PosterRequest holds the validated, immutable input of a render job.
type PosterRequest struct {
	City         string
	State        string
	Country      string
	Theme        string
	Size         string
	Radius       int
	AddToGallery bool
}

// Job is one unit of asynchronous poster generation. Records are owned
// exclusively by the job store; everything else sees value copies.
type Job struct {
	ID          string
	Status      JobStatus
	Progress    int
	Message     string
	Error       string
	ResultFile  string
	Request     PosterRequest
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// DownloadAvailable reports whether the poster artifact may be served.
func (j Job) DownloadAvailable() bool {
	return j.Status == JobStatusCompleted && j.ResultFile != ""
}
