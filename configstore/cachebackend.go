package configstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-redis/redis/v8"
)

// CacheBackend is an optional second-tier cache consulted when a Store's
// own in-memory cache is empty or past STALE_MAX_AGE: a shared backend lets
// several Store instances (e.g. one per process on a fleet) serve a stale
// policy fetched by any of them, rather than each one failing open/closed
// independently the first time the CDN is unreachable.
type CacheBackend interface {
	Load(ctx context.Context, key string) (data []byte, fetchedAt time.Time, ok bool, err error)
	Store(ctx context.Context, key string, data []byte, fetchedAt time.Time) error
}

// cacheRecord is the wire shape written to a CacheBackend: the policy's
// JSON encoding plus the time it was fetched, so a consumer can apply the
// same STALE_MAX_AGE rule the in-memory cache uses.
type cacheRecord struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Policy    json.RawMessage `json:"policy"`
}

// RedisCache stores one cacheRecord per (org, project) key, with the
// record's own TTL set to StaleMaxAge so Redis reaps entries no Store would
// have accepted as stale anyway.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an already-configured *redis.Client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func redisCacheKey(key string) string {
	return "trustpin:policy:" + key
}

func (c *RedisCache) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	raw, err := c.client.Get(ctx, redisCacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	var rec cacheRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, time.Time{}, false, err
	}
	return rec.Policy, rec.FetchedAt, true, nil
}

func (c *RedisCache) Store(ctx context.Context, key string, data []byte, fetchedAt time.Time) error {
	raw, err := json.Marshal(cacheRecord{FetchedAt: fetchedAt, Policy: data})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisCacheKey(key), raw, StaleMaxAge).Err()
}

// S3Cache stores one object per (org, project) key in an S3 (or
// S3-compatible) bucket. There is no server-side expiry here and Load does
// not check age itself: it returns fetchedAt, and the Store applies the
// same StaleMaxAge rule it uses for the in-memory cache. A lifecycle rule on
// the bucket is the operator's concern.
type S3Cache struct {
	client *s3.Client
	bucket string
}

// NewS3Cache wraps an already-configured *s3.Client targeting bucket.
func NewS3Cache(client *s3.Client, bucket string) *S3Cache {
	return &S3Cache{client: client, bucket: bucket}
}

func s3CacheKey(key string) string {
	return "policy/" + strings.ReplaceAll(key, "/", "_") + ".json"
}

func (c *S3Cache) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(s3CacheKey(key)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	var rec cacheRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, time.Time{}, false, err
	}
	return rec.Policy, rec.FetchedAt, true, nil
}

func (c *S3Cache) Store(ctx context.Context, key string, data []byte, fetchedAt time.Time) error {
	raw, err := json.Marshal(cacheRecord{FetchedAt: fetchedAt, Policy: data})
	if err != nil {
		return err
	}
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(s3CacheKey(key)),
		Body:   bytes.NewReader(raw),
	})
	return err
}
