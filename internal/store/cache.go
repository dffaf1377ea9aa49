package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbiterhq/arbiter/internal/rules"
)

const snapshotTTL = 24 * time.Hour

var _ VersionStore = (*Cached)(nil)

// Cached wraps a VersionStore with a Redis read-through cache for approved
// snapshots. Approved versions are immutable, so cached entries can never go
// stale; the TTL only bounds memory. Drafts and writes pass straight
// through. A nil client degrades to the inner store.
type Cached struct {
	VersionStore
	rdb *redis.Client
}

// NewCache connects to Redis by URL. An empty URL returns a nil client,
// which Wrap treats as "no cache".
func NewCache(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func Wrap(inner VersionStore, rdb *redis.Client) VersionStore {
	if rdb == nil {
		return inner
	}
	return &Cached{VersionStore: inner, rdb: rdb}
}

func hashKey(contentHash string) string {
	return "arbiter:ruleset:hash:" + contentHash
}

func versionKey(policyID string, version int) string {
	return fmt.Sprintf("arbiter:ruleset:%s:v%d", policyID, version)
}

func (c *Cached) GetByHash(ctx context.Context, contentHash string) (*rules.RuleSet, error) {
	if rs := c.cached(ctx, hashKey(contentHash)); rs != nil {
		return rs, nil
	}
	rs, err := c.VersionStore.GetByHash(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	c.put(ctx, rs)
	return rs, nil
}

func (c *Cached) GetByVersion(ctx context.Context, policyID string, version int) (*rules.RuleSet, error) {
	if rs := c.cached(ctx, versionKey(policyID, version)); rs != nil {
		return rs, nil
	}
	rs, err := c.VersionStore.GetByVersion(ctx, policyID, version)
	if err != nil {
		return nil, err
	}
	c.put(ctx, rs)
	return rs, nil
}

func (c *Cached) cached(ctx context.Context, key string) *rules.RuleSet {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var rs rules.RuleSet
	if json.Unmarshal(b, &rs) != nil {
		return nil
	}
	return &rs
}

// put caches approved snapshots only: drafts mutate, snapshots never do.
func (c *Cached) put(ctx context.Context, rs *rules.RuleSet) {
	if !rs.Frozen() {
		return
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, hashKey(rs.ContentHash), b, snapshotTTL)
	c.rdb.Set(ctx, versionKey(rs.PolicyID, rs.Version), b, snapshotTTL)
}
