package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/afrarahimemadak/stellarwork"
)

// Store persists session contexts. A session has no expiry; it lives until
// Delete.
type Store interface {
	Create(ctx context.Context, sc stellarwork.SessionContext) error
	Get(ctx context.Context, id string) (*stellarwork.SessionContext, error)
	SetUserID(ctx context.Context, id string, userID int64) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]stellarwork.SessionContext
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]stellarwork.SessionContext)}
}

func (s *MemoryStore) Create(_ context.Context, sc stellarwork.SessionContext) error {
	if sc.ID == "" {
		return fmt.Errorf("%w: session id cannot be empty", stellarwork.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.UserID != nil {
		id := *sc.UserID
		sc.UserID = &id
	}
	s.sessions[sc.ID] = sc
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*stellarwork.SessionContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.sessions[id]
	if !ok {
		return nil, stellarwork.ErrSessionNotFound
	}
	if sc.UserID != nil {
		uid := *sc.UserID
		sc.UserID = &uid
	}
	return &sc, nil
}

func (s *MemoryStore) SetUserID(_ context.Context, id string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.sessions[id]
	if !ok {
		return stellarwork.ErrSessionNotFound
	}
	sc.UserID = &userID
	s.sessions[id] = sc
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Redis hash fields.
const (
	fieldWallet = "wallet_address"
	fieldRole   = "role"
	fieldUserID = "user_id"
)

// DefaultKeyPrefix namespaces session hashes.
const DefaultKeyPrefix = "stellarwork:session:"

// RedisStore keeps each session in a Redis hash.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore on client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: DefaultKeyPrefix}
}

// ConnectRedis opens a client and checks it with PING.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Create(ctx context.Context, sc stellarwork.SessionContext) error {
	if sc.ID == "" {
		return fmt.Errorf("%w: session id cannot be empty", stellarwork.ErrInvalidInput)
	}
	key := s.key(sc.ID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldWallet, string(sc.WalletAddress), fieldRole, string(sc.Role))
		if sc.UserID != nil {
			pipe.HSet(ctx, key, fieldUserID, *sc.UserID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*stellarwork.SessionContext, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(fields) == 0 {
		return nil, stellarwork.ErrSessionNotFound
	}
	return decodeFields(id, fields)
}

func (s *RedisStore) SetUserID(ctx context.Context, id string, userID int64) error {
	key := s.key(id)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if n == 0 {
		return stellarwork.ErrSessionNotFound
	}
	if err := s.client.HSet(ctx, key, fieldUserID, userID).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func decodeFields(id string, fields map[string]string) (*stellarwork.SessionContext, error) {
	sc := &stellarwork.SessionContext{
		ID:            id,
		WalletAddress: stellarwork.WalletAddress(fields[fieldWallet]),
		Role:          stellarwork.Role(fields[fieldRole]),
	}
	if raw, ok := fields[fieldUserID]; ok && raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("session %s: bad user id %q: %w", id, raw, err)
		}
		sc.UserID = &uid
	}
	return sc, nil
}
