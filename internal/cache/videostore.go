package cache

import (
	"context"

	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// VideoStore is the lookup the cached decorator delegates to on a miss
type VideoStore interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	GetChannelOwner(ctx context.Context, channelID string) (string, error)
}

// CachedVideoStore puts the video cache in front of a VideoStore. Cache
// failures fall through to the backing store; negative results are not
// cached so a deleted video never resolves from stale cache as not-found.
type CachedVideoStore struct {
	cache *Cache
	store VideoStore
}

// NewCachedVideoStore wraps store with the cache
func NewCachedVideoStore(cache *Cache, store VideoStore) *CachedVideoStore {
	return &CachedVideoStore{cache: cache, store: store}
}

// GetVideo returns the cached projection when present, otherwise reads
// through to the store and backfills the cache
func (s *CachedVideoStore) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	if cached, err := s.cache.GetVideo(ctx, id); err == nil && cached != nil {
		return cached, nil
	}

	video, err := s.store.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}

	// Backfill failures are not worth surfacing.
	_ = s.cache.SetVideo(ctx, video)

	return video, nil
}

// GetChannelOwner delegates to the backing store. Channel ownership changes
// are rare but authorization-critical, so it is not cached.
func (s *CachedVideoStore) GetChannelOwner(ctx context.Context, channelID string) (string, error) {
	return s.store.GetChannelOwner(ctx, channelID)
}
