package models

import (
	"time"
)

// PermissionGrant gives one viewer explicit access to one video, optionally
// until an expiry time. A nil ExpiresAt never expires.
type PermissionGrant struct {
	ID              string     `json:"id" db:"id"`
	VideoID         string     `json:"video_id" db:"video_id"`
	GranteeUserID   string     `json:"grantee_user_id" db:"grantee_user_id"`
	PermissionType  string     `json:"permission_type" db:"permission_type"`
	GrantedByUserID string     `json:"granted_by_user_id" db:"granted_by_user_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// PermissionType constants
const (
	PermissionTypeView = "view"
)

// Expired reports whether the grant has lapsed. Expired grants are treated
// identically to absent ones; they are never eagerly deleted.
func (g *PermissionGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}
