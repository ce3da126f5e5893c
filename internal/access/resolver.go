package access

import (
	"context"
	"errors"
	"time"

	"github.com/therealutkarshpriyadarshi/streamgate/internal/audit"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/database"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// VideoStore is the read-only video/channel lookup contract the resolver
// depends on. Deliberately narrow: a flat video projection and a single
// channel-owner lookup, no object graph.
type VideoStore interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	GetChannelOwner(ctx context.Context, channelID string) (string, error)
}

// GrantStore looks up explicit permission grants
type GrantStore interface {
	GetGrant(ctx context.Context, videoID, granteeUserID, permissionType string) (*models.PermissionGrant, error)
}

// Decision is the outcome of one authorization check. Denials are expected
// results, not errors; infrastructure failures surface as a separate error
// and must be retried, never treated as a deny.
type Decision struct {
	Allow   bool   `json:"allow"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Resolver decides whether a viewer may watch a video by evaluating an
// ordered rule list: existence, readiness, visibility tier, ownership,
// explicit grants, channel ownership. First matching rule wins.
type Resolver struct {
	videos  VideoStore
	grants  GrantStore
	emitter *audit.Emitter
	logger  *logging.Logger
	now     func() time.Time
}

// NewResolver creates a resolver over the given stores
func NewResolver(videos VideoStore, grants GrantStore, emitter *audit.Emitter, logger *logging.Logger) *Resolver {
	return &Resolver{
		videos:  videos,
		grants:  grants,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

func allow(reason, message string) Decision {
	return Decision{Allow: true, Reason: reason, Message: message}
}

func deny(reason, message string) Decision {
	return Decision{Allow: false, Reason: reason, Message: message}
}

// Resolve evaluates access for (video, viewer). A nil viewerID means an
// anonymous request. ipHash is only carried into the audit record.
func (r *Resolver) Resolve(ctx context.Context, videoID string, viewerID *string, ipHash string) (Decision, error) {
	decision, err := r.evaluate(ctx, videoID, viewerID)
	if err != nil {
		return Decision{}, err
	}

	metrics.RecordAccessDecision(decision.Allow, decision.Reason)
	r.logger.LogAccessDecision(videoID, viewerID, decision.Allow, decision.Reason)

	// Fire-and-forget: emission failure never blocks the decision.
	r.emitter.Emit(ctx, audit.Event{
		VideoID:   videoID,
		ViewerID:  viewerID,
		Allow:     decision.Allow,
		Reason:    decision.Reason,
		IPHash:    ipHash,
		Timestamp: r.now(),
	})

	return decision, nil
}

func (r *Resolver) evaluate(ctx context.Context, videoID string, viewerID *string) (Decision, error) {
	video, err := r.videos.GetVideo(ctx, videoID)
	if errors.Is(err, database.ErrVideoNotFound) {
		return deny(models.ReasonVideoNotFound, "video does not exist"), nil
	}
	if err != nil {
		return Decision{}, err
	}

	isCreator := viewerID != nil && *viewerID == video.CreatorID

	if !video.IsStreamable() && !isCreator {
		return deny(models.ReasonVideoNotReady, "video is not ready for streaming"), nil
	}

	switch video.Visibility {
	case models.VisibilityPublic:
		return allow(models.ReasonPublicVideo, "video is public"), nil
	case models.VisibilityUnlisted:
		// Obscurity, not authorization, is the control here.
		return allow(models.ReasonUnlistedVideo, "video is unlisted"), nil
	}

	// Private video rules.
	if viewerID == nil {
		return deny(models.ReasonAuthenticationRequired, "sign in to watch this video"), nil
	}

	if isCreator {
		return allow(models.ReasonVideoCreator, "viewer owns this video"), nil
	}

	grant, err := r.grants.GetGrant(ctx, videoID, *viewerID, models.PermissionTypeView)
	if err != nil && !errors.Is(err, database.ErrGrantNotFound) {
		return Decision{}, err
	}
	if grant != nil && !grant.Expired(r.now()) {
		return allow(models.ReasonExplicitPermission, "viewer has an explicit grant"), nil
	}

	if video.ChannelID != nil {
		owner, err := r.videos.GetChannelOwner(ctx, *video.ChannelID)
		if err != nil && !errors.Is(err, database.ErrChannelNotFound) {
			return Decision{}, err
		}
		if err == nil && owner == *viewerID {
			return allow(models.ReasonChannelPermission, "viewer owns the channel"), nil
		}
	}

	return deny(models.ReasonInsufficientPermissions, "viewer is not permitted to watch this video"), nil
}
