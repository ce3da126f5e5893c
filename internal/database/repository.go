package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// Sentinel errors for expected lookup misses. Callers translate these into
// reason codes; anything else is an infrastructure failure and retryable.
var (
	ErrVideoNotFound   = errors.New("video not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrGrantNotFound   = errors.New("grant not found")
)

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Videos

// GetVideo retrieves a video by ID
func (r *Repository) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video

	query := `
		SELECT id, creator_id, channel_id, title, visibility, status, duration,
		       created_at, updated_at
		FROM videos
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&video.ID, &video.CreatorID, &video.ChannelID, &video.Title,
		&video.Visibility, &video.Status, &video.Duration,
		&video.CreatedAt, &video.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return &video, nil
}

// Channels

// GetChannelOwner retrieves the creator ID of a channel. The access resolver
// depends on this narrow lookup instead of a loaded channel object graph.
func (r *Repository) GetChannelOwner(ctx context.Context, channelID string) (string, error) {
	var creatorID string

	query := `SELECT creator_id FROM channels WHERE id = $1`

	err := r.db.Pool.QueryRow(ctx, query, channelID).Scan(&creatorID)
	if err == pgx.ErrNoRows {
		return "", ErrChannelNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get channel owner: %w", err)
	}

	return creatorID, nil
}

// Renditions

// GetCompletedRenditions retrieves the streamable renditions of a video:
// those whose transcode job completed and which carry a manifest key.
func (r *Repository) GetCompletedRenditions(ctx context.Context, videoID string) ([]*models.Rendition, error) {
	query := `
		SELECT o.id, o.video_id, o.job_id, o.preset, o.width, o.height,
		       o.bitrate, o.framerate, o.manifest_key, o.created_at
		FROM rendition_outputs o
		JOIN transcode_jobs j ON j.id = o.job_id
		WHERE o.video_id = $1
		  AND j.status = $2
		  AND o.manifest_key <> ''
		ORDER BY o.height DESC, o.framerate DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, videoID, models.JobStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to get renditions: %w", err)
	}
	defer rows.Close()

	var renditions []*models.Rendition
	for rows.Next() {
		var rendition models.Rendition
		err := rows.Scan(
			&rendition.ID, &rendition.VideoID, &rendition.JobID, &rendition.Preset,
			&rendition.Width, &rendition.Height, &rendition.Bitrate,
			&rendition.Framerate, &rendition.ManifestKey, &rendition.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rendition: %w", err)
		}
		renditions = append(renditions, &rendition)
	}

	return renditions, nil
}
