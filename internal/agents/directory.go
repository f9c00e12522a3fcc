package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Directory maps callers to extension agents. Sticky assignments live in
// Redis so a farmer who calls back inside the TTL reaches the same agent.
// The agent pool itself is a Redis set maintained by operations tooling.

const (
	keyPrefixAssignment = "agents:assigned:"
	keyAgentPool        = "agents:pool"
)

var ErrNoAgents = errors.New("agents: no agents available")

// store is the slice of the Redis command surface the directory uses.
// *redis.Client satisfies it.
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	SRandMember(ctx context.Context, key string) *redis.StringCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

type Directory struct {
	rdb       store
	stickyTTL time.Duration
}

func NewDirectory(rdb store, stickyTTL time.Duration) *Directory {
	if stickyTTL <= 0 {
		stickyTTL = 24 * time.Hour
	}
	return &Directory{rdb: rdb, stickyTTL: stickyTTL}
}

func assignmentKey(phoneNumber string) string {
	return keyPrefixAssignment + phoneNumber
}

// AgentFor returns the dial target for a caller. An existing sticky
// assignment wins; otherwise a random agent from the pool is assigned and
// pinned for the sticky TTL.
func (d *Directory) AgentFor(ctx context.Context, phoneNumber string) (string, error) {
	if phoneNumber == "" {
		return "", fmt.Errorf("agents: phone number is required")
	}

	agent, err := d.rdb.Get(ctx, assignmentKey(phoneNumber)).Result()
	if err == nil && agent != "" {
		// Refresh so active relationships persist.
		_ = d.rdb.Expire(ctx, assignmentKey(phoneNumber), d.stickyTTL).Err()
		return agent, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("agents: lookup failed: %w", err)
	}

	agent, err = d.rdb.SRandMember(ctx, keyAgentPool).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoAgents
		}
		return "", fmt.Errorf("agents: pool read failed: %w", err)
	}
	if agent == "" {
		return "", ErrNoAgents
	}

	if err := d.rdb.Set(ctx, assignmentKey(phoneNumber), agent, d.stickyTTL).Err(); err != nil {
		return "", fmt.Errorf("agents: assign failed: %w", err)
	}
	return agent, nil
}

// Assign pins a caller to a specific agent, replacing any prior assignment.
func (d *Directory) Assign(ctx context.Context, phoneNumber, agent string) error {
	if phoneNumber == "" || agent == "" {
		return fmt.Errorf("agents: phone number and agent are required")
	}
	if err := d.rdb.Set(ctx, assignmentKey(phoneNumber), agent, d.stickyTTL).Err(); err != nil {
		return fmt.Errorf("agents: assign failed: %w", err)
	}
	return nil
}

// AddAgent registers an agent dial target in the pool.
func (d *Directory) AddAgent(ctx context.Context, agent string) error {
	if agent == "" {
		return fmt.Errorf("agents: agent is required")
	}
	return d.rdb.SAdd(ctx, keyAgentPool, agent).Err()
}

// RemoveAgent removes an agent from the pool. Existing sticky assignments
// are left to expire on their own.
func (d *Directory) RemoveAgent(ctx context.Context, agent string) error {
	if agent == "" {
		return fmt.Errorf("agents: agent is required")
	}
	return d.rdb.SRem(ctx, keyAgentPool, agent).Err()
}
