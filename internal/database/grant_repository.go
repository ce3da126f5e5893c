package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// Permission grants

// CreateGrant creates a new permission grant record
func (r *Repository) CreateGrant(ctx context.Context, grant *models.PermissionGrant) error {
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}

	query := `
		INSERT INTO permission_grants (id, video_id, grantee_user_id, permission_type,
		                               granted_by_user_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		grant.ID, grant.VideoID, grant.GranteeUserID, grant.PermissionType,
		grant.GrantedByUserID, grant.ExpiresAt,
	).Scan(&grant.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}

	return nil
}

// GetGrant retrieves a grant for (video, grantee, type). Expired grants are
// still returned; lazy expiry is the resolver's concern.
func (r *Repository) GetGrant(ctx context.Context, videoID, granteeUserID, permissionType string) (*models.PermissionGrant, error) {
	var grant models.PermissionGrant

	query := `
		SELECT id, video_id, grantee_user_id, permission_type, granted_by_user_id,
		       created_at, expires_at
		FROM permission_grants
		WHERE video_id = $1 AND grantee_user_id = $2 AND permission_type = $3
	`

	err := r.db.Pool.QueryRow(ctx, query, videoID, granteeUserID, permissionType).Scan(
		&grant.ID, &grant.VideoID, &grant.GranteeUserID, &grant.PermissionType,
		&grant.GrantedByUserID, &grant.CreatedAt, &grant.ExpiresAt,
	)

	if err == pgx.ErrNoRows {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}

	return &grant, nil
}

// ListGrants retrieves all grants for a video
func (r *Repository) ListGrants(ctx context.Context, videoID string) ([]*models.PermissionGrant, error) {
	query := `
		SELECT id, video_id, grantee_user_id, permission_type, granted_by_user_id,
		       created_at, expires_at
		FROM permission_grants
		WHERE video_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []*models.PermissionGrant
	for rows.Next() {
		var grant models.PermissionGrant
		err := rows.Scan(
			&grant.ID, &grant.VideoID, &grant.GranteeUserID, &grant.PermissionType,
			&grant.GrantedByUserID, &grant.CreatedAt, &grant.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, &grant)
	}

	return grants, nil
}

// DeleteGrant removes a grant for (video, grantee, type)
func (r *Repository) DeleteGrant(ctx context.Context, videoID, granteeUserID, permissionType string) error {
	query := `
		DELETE FROM permission_grants
		WHERE video_id = $1 AND grantee_user_id = $2 AND permission_type = $3
	`

	tag, err := r.db.Pool.Exec(ctx, query, videoID, granteeUserID, permissionType)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}

	return nil
}
