package models

import (
	"time"
)

// Video is the flat projection of a video record consumed by the access
// subsystem. Read-only here; the upload/transcoding pipeline owns it.
type Video struct {
	ID         string    `json:"id" db:"id"`
	CreatorID  string    `json:"creator_id" db:"creator_id"`
	ChannelID  *string   `json:"channel_id,omitempty" db:"channel_id"`
	Title      string    `json:"title" db:"title"`
	Visibility string    `json:"visibility" db:"visibility"`
	Status     string    `json:"status" db:"status"`
	Duration   float64   `json:"duration" db:"duration"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Channel groups videos under a single owning creator
type Channel struct {
	ID        string    `json:"id" db:"id"`
	CreatorID string    `json:"creator_id" db:"creator_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Visibility constants
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
)

// VideoStatus constants
const (
	VideoStatusUploading   = "uploading"
	VideoStatusProcessing  = "processing"
	VideoStatusTranscoding = "transcoding"
	VideoStatusReady       = "ready"
	VideoStatusFailed      = "failed"
	VideoStatusDeleted     = "deleted"
)

// IsStreamable reports whether non-creators may be served this video
func (v *Video) IsStreamable() bool {
	return v.Status == VideoStatusReady
}
