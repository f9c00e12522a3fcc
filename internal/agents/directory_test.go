package agents

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeStore is an in-memory stand-in for the Redis commands the directory
// uses. Expirations are not simulated; sticky TTL behavior is asserted via
// the recorded arguments instead.
type fakeStore struct {
	kv      map[string]string
	pool    []string
	lastTTL time.Duration
	expired map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{kv: map[string]string{}, expired: map[string]time.Duration{}}
}

func (f *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd {
	if v, ok := f.kv[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.kv[key] = value.(string)
	f.lastTTL = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expired[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) SRandMember(ctx context.Context, key string) *redis.StringCmd {
	if len(f.pool) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(f.pool[0], nil)
}

func (f *fakeStore) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	for _, m := range members {
		f.pool = append(f.pool, m.(string))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeStore) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	var removed int64
	for _, m := range members {
		for i, a := range f.pool {
			if a == m.(string) {
				f.pool = append(f.pool[:i], f.pool[i+1:]...)
				removed++
				break
			}
		}
	}
	return redis.NewIntResult(removed, nil)
}

func TestAgentForAssignsFromPool(t *testing.T) {
	st := newFakeStore()
	st.pool = []string{"sip:agent-1@farm.example"}
	d := NewDirectory(st, time.Hour)

	agent, err := d.AgentFor(context.Background(), "+2348012345678")
	if err != nil {
		t.Fatalf("AgentFor: %v", err)
	}
	if agent != "sip:agent-1@farm.example" {
		t.Fatalf("got %q", agent)
	}
	if st.kv["agents:assigned:+2348012345678"] != agent {
		t.Fatal("assignment not stored")
	}
	if st.lastTTL != time.Hour {
		t.Fatalf("stored TTL %v, want 1h", st.lastTTL)
	}
}

func TestAgentForIsSticky(t *testing.T) {
	st := newFakeStore()
	st.pool = []string{"sip:agent-2@farm.example"}
	st.kv["agents:assigned:+2348012345678"] = "sip:agent-1@farm.example"
	d := NewDirectory(st, time.Hour)

	agent, err := d.AgentFor(context.Background(), "+2348012345678")
	if err != nil {
		t.Fatalf("AgentFor: %v", err)
	}
	if agent != "sip:agent-1@farm.example" {
		t.Fatalf("sticky assignment ignored, got %q", agent)
	}
	if st.expired["agents:assigned:+2348012345678"] != time.Hour {
		t.Fatal("sticky assignment TTL not refreshed")
	}
}

func TestAgentForEmptyPool(t *testing.T) {
	d := NewDirectory(newFakeStore(), time.Hour)
	if _, err := d.AgentFor(context.Background(), "+2348012345678"); err != ErrNoAgents {
		t.Fatalf("err = %v, want ErrNoAgents", err)
	}
}

func TestAssignOverridesExisting(t *testing.T) {
	st := newFakeStore()
	st.kv["agents:assigned:+234800"] = "sip:old@farm.example"
	d := NewDirectory(st, time.Hour)

	if err := d.Assign(context.Background(), "+234800", "sip:new@farm.example"); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if st.kv["agents:assigned:+234800"] != "sip:new@farm.example" {
		t.Fatal("assignment not replaced")
	}
}

func TestPoolManagement(t *testing.T) {
	st := newFakeStore()
	d := NewDirectory(st, 0)

	if err := d.AddAgent(context.Background(), "sip:a@x"); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if err := d.RemoveAgent(context.Background(), "sip:a@x"); err != nil {
		t.Fatalf("RemoveAgent: %v", err)
	}
	if len(st.pool) != 0 {
		t.Fatalf("pool = %v", st.pool)
	}
	if err := d.AddAgent(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty agent")
	}
}
