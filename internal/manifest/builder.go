package manifest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/streamgate/internal/access"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/session"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/token"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/tracing"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// DefaultURLTTL is how long signed stream URLs stay valid
const DefaultURLTTL = 120 * time.Minute

// RenditionStore loads the streamable renditions of a video
type RenditionStore interface {
	GetCompletedRenditions(ctx context.Context, videoID string) ([]*models.Rendition, error)
}

// RenditionCache is an optional read-through cache in front of the store.
// Failures degrade to the store silently.
type RenditionCache interface {
	GetRenditions(ctx context.Context, videoID string) ([]*models.Rendition, error)
	SetRenditions(ctx context.Context, videoID string, renditions []*models.Rendition) error
}

// Builder orchestrates a playback request: authorization, session open,
// per-rendition URL signing, recommended quality selection.
type Builder struct {
	resolver   *access.Resolver
	sessions   *session.Manager
	signer     *token.Signer
	renditions RenditionStore
	cache      RenditionCache
	logger     *logging.Logger
	urlTTL     time.Duration
}

// NewBuilder creates a manifest builder. cache may be nil.
func NewBuilder(resolver *access.Resolver, sessions *session.Manager, signer *token.Signer, renditions RenditionStore, cache RenditionCache, logger *logging.Logger, urlTTL time.Duration) *Builder {
	if urlTTL <= 0 {
		urlTTL = DefaultURLTTL
	}

	return &Builder{
		resolver:   resolver,
		sessions:   sessions,
		signer:     signer,
		renditions: renditions,
		cache:      cache,
		logger:     logger,
		urlTTL:     urlTTL,
	}
}

func failure(reason, message string) *models.ManifestResult {
	return &models.ManifestResult{Success: false, Error: reason, Message: message}
}

// Build produces a playback manifest. A DENY is terminal and returned inside
// the result; an infrastructure failure is returned as an error and safe to
// retry with backoff.
func (b *Builder) Build(ctx context.Context, req models.ManifestRequest) (*models.ManifestResult, error) {
	span, ctx := tracing.StartSpan(ctx, "manifest.build")
	defer span.Finish()
	span.SetTag("video_id", req.VideoID)

	start := time.Now()
	result, err := b.build(ctx, req)
	metrics.ManifestBuildDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		tracing.LogError(span, err)
		metrics.ManifestsBuiltTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if result.Success {
		metrics.ManifestsBuiltTotal.WithLabelValues("success").Inc()
	} else {
		metrics.ManifestsBuiltTotal.WithLabelValues(result.Error).Inc()
	}

	return result, nil
}

func (b *Builder) build(ctx context.Context, req models.ManifestRequest) (*models.ManifestResult, error) {
	decision, err := b.resolver.Resolve(ctx, req.VideoID, req.ViewerUserID, session.HashFingerprint(req.ClientIP))
	if err != nil {
		return nil, err
	}
	if !decision.Allow {
		return failure(decision.Reason, decision.Message), nil
	}

	renditions, err := b.loadRenditions(ctx, req.VideoID)
	if err != nil {
		return nil, err
	}
	if len(renditions) == 0 {
		return failure(models.ReasonNoStreamsAvailable, "no completed renditions for this video"), nil
	}

	sessionToken, err := b.sessions.Open(ctx, req.VideoID, req.ViewerUserID, req.ClientIP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	streams := make(map[string]models.StreamVariant, len(renditions))
	var expiresAt time.Time
	for _, rendition := range renditions {
		url, exp := b.signer.Sign(req.VideoID, rendition.Preset, sessionToken, b.urlTTL)
		expiresAt = exp
		streams[rendition.Preset] = models.StreamVariant{
			URL:        url,
			Resolution: rendition.Resolution(),
			Bitrate:    rendition.Bitrate,
			Framerate:  rendition.Framerate,
		}
	}

	return &models.ManifestResult{
		Success:            true,
		VideoID:            req.VideoID,
		SessionToken:       sessionToken,
		Streams:            streams,
		RecommendedQuality: recommendQuality(renditions, req.QualityPreference),
		ExpiresAt:          expiresAt,
	}, nil
}

func (b *Builder) loadRenditions(ctx context.Context, videoID string) ([]*models.Rendition, error) {
	if b.cache != nil {
		cached, err := b.cache.GetRenditions(ctx, videoID)
		if err != nil {
			b.logger.WithError(err).Warn("Rendition cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	renditions, err := b.renditions.GetCompletedRenditions(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if b.cache != nil && len(renditions) > 0 {
		if err := b.cache.SetRenditions(ctx, videoID, renditions); err != nil {
			b.logger.WithError(err).Warn("Rendition cache write failed")
		}
	}

	return renditions, nil
}

// recommendQuality picks the default rendition: the client's preference when
// available, else a 720p rendition, else the best available by resolution
// height then framerate.
func recommendQuality(renditions []*models.Rendition, preferred string) string {
	if preferred != "" {
		for _, r := range renditions {
			if r.Preset == preferred {
				return preferred
			}
		}
	}

	for _, r := range renditions {
		if strings.HasPrefix(r.Preset, "720p") {
			return r.Preset
		}
	}

	sorted := make([]*models.Rendition, len(renditions))
	copy(sorted, renditions)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Height != sorted[j].Height {
			return sorted[i].Height > sorted[j].Height
		}
		return sorted[i].Framerate > sorted[j].Framerate
	})

	return sorted[0].Preset
}
