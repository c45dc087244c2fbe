package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State names the multi-step input the bot is waiting for from a user.
type State string

const (
	StateNone              State = ""
	StateAwaitCryptoAmount State = "await_crypto_amount"
	StateAwaitTonAmount    State = "await_ton_amount"
	StateAwaitStars        State = "await_stars"
)

// stateTTL caps how long an unfinished dialog survives.
const stateTTL = 15 * time.Minute

// StateStore keeps per-user conversation state between messages.
type StateStore interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, s State) error
	Clear(ctx context.Context, userID int64) error
}

type memoryEntry struct {
	state   State
	expires time.Time
}

// MemoryStates is the default in-process store.
type MemoryStates struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
}

func NewMemoryStates() *MemoryStates {
	return &MemoryStates{entries: make(map[int64]memoryEntry)}
}

func (m *MemoryStates) Get(ctx context.Context, userID int64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[userID]
	if !ok {
		return StateNone, nil
	}
	if time.Now().After(e.expires) {
		delete(m.entries, userID)
		return StateNone, nil
	}
	return e.state, nil
}

func (m *MemoryStates) Set(ctx context.Context, userID int64, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = memoryEntry{state: s, expires: time.Now().Add(stateTTL)}
	return nil
}

func (m *MemoryStates) Clear(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

// RedisStates shares dialog state between bot replicas.
type RedisStates struct {
	client *redis.Client
}

func NewRedisStates(addr string) *RedisStates {
	return &RedisStates{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func stateKey(userID int64) string {
	return fmt.Sprintf("fsm:%d", userID)
}

func (r *RedisStates) Get(ctx context.Context, userID int64) (State, error) {
	v, err := r.client.Get(ctx, stateKey(userID)).Result()
	if err == redis.Nil {
		return StateNone, nil
	}
	if err != nil {
		return StateNone, err
	}
	return State(v), nil
}

func (r *RedisStates) Set(ctx context.Context, userID int64, s State) error {
	return r.client.Set(ctx, stateKey(userID), string(s), stateTTL).Err()
}

func (r *RedisStates) Clear(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, stateKey(userID)).Err()
}
