package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// Cache is a read-through cache for video and rendition metadata backed by
// Redis. The manifest builder consults it before the database; misses and
// Redis failures both fall through silently.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Video operations

// SetVideo caches a video projection
func (c *Cache) SetVideo(ctx context.Context, video *models.Video) error {
	data, err := json.Marshal(video)
	if err != nil {
		return fmt.Errorf("failed to marshal video: %w", err)
	}

	key := fmt.Sprintf("video:%s", video.ID)
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// GetVideo retrieves a video projection from cache. A nil result with nil
// error is a cache miss.
func (c *Cache) GetVideo(ctx context.Context, videoID string) (*models.Video, error) {
	key := fmt.Sprintf("video:%s", videoID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheAccess("video", false)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get video from cache: %w", err)
	}

	var video models.Video
	if err := json.Unmarshal(data, &video); err != nil {
		return nil, fmt.Errorf("failed to unmarshal video: %w", err)
	}

	metrics.RecordCacheAccess("video", true)
	return &video, nil
}

// DeleteVideo removes a video from cache
func (c *Cache) DeleteVideo(ctx context.Context, videoID string) error {
	key := fmt.Sprintf("video:%s", videoID)
	return c.client.Del(ctx, key).Err()
}

// Rendition operations

// SetRenditions caches the completed renditions of a video
func (c *Cache) SetRenditions(ctx context.Context, videoID string, renditions []*models.Rendition) error {
	data, err := json.Marshal(renditions)
	if err != nil {
		return fmt.Errorf("failed to marshal renditions: %w", err)
	}

	key := fmt.Sprintf("renditions:%s", videoID)
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// GetRenditions retrieves cached renditions for a video. A nil result with
// nil error is a cache miss.
func (c *Cache) GetRenditions(ctx context.Context, videoID string) ([]*models.Rendition, error) {
	key := fmt.Sprintf("renditions:%s", videoID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheAccess("renditions", false)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get renditions from cache: %w", err)
	}

	var renditions []*models.Rendition
	if err := json.Unmarshal(data, &renditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal renditions: %w", err)
	}

	metrics.RecordCacheAccess("renditions", true)
	return renditions, nil
}

// DeleteRenditions removes cached renditions for a video
func (c *Cache) DeleteRenditions(ctx context.Context, videoID string) error {
	key := fmt.Sprintf("renditions:%s", videoID)
	return c.client.Del(ctx, key).Err()
}
