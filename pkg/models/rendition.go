package models

import (
	"fmt"
	"time"
)

// Rendition is one transcoded quality variant of a video, derived from a
// completed transcode job. Only renditions with a manifest key are offered
// for streaming.
type Rendition struct {
	ID          string    `json:"id" db:"id"`
	VideoID     string    `json:"video_id" db:"video_id"`
	JobID       string    `json:"job_id" db:"job_id"`
	Preset      string    `json:"preset" db:"preset"`
	Width       int       `json:"width" db:"width"`
	Height      int       `json:"height" db:"height"`
	Bitrate     int64     `json:"bitrate" db:"bitrate"`
	Framerate   float64   `json:"framerate" db:"framerate"`
	ManifestKey string    `json:"manifest_key" db:"manifest_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TranscodeJobStatus constants, mirrored from the transcoding pipeline
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Resolution returns the rendition's "WxH" label
func (r *Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}
