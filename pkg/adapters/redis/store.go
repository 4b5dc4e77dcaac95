package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/voicesurvey/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.ParticipantStore using Redis.
//
// Each participant is a hash (prefix+callID) holding its identity, a list
// (prefix+callID+":answers") holding JSON answers in arrival order, and a set
// (prefix+callID+":refs") of recording refs used to drop redeliveries.
// A sorted set (prefix+"index") scored by expiry tracks participants for List.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for participants. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for participants.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "voicesurvey:participant:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(callID string) string {
	return s.prefix + callID
}

func (s *Store) answersKey(callID string) string {
	return s.prefix + callID + ":answers"
}

func (s *Store) refsKey(callID string) string {
	return s.prefix + callID + ":refs"
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// score is the index score of a participant: its expiry, or far future without TTL.
func (s *Store) score() float64 {
	if s.ttl == 0 {
		return 4102444800 // 2100-01-01
	}
	return float64(time.Now().Add(s.ttl).Unix())
}

// KEYS: hash, index. ARGV: callID, number, createdAt, ttl ms, score.
var createScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "callId", ARGV[1], "number", ARGV[2], "createdAt", ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[4])
end
redis.call("ZADD", KEYS[2], ARGV[5], ARGV[1])
return 1
`)

// KEYS: hash, answers, refs, index. ARGV: recording ref, answer JSON, limit, ttl ms, callID, score.
// Returns -1 when the participant does not exist, otherwise the answer count.
var appendScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
local n = redis.call("LLEN", KEYS[2])
if n >= tonumber(ARGV[3]) then
	return n
end
if redis.call("SADD", KEYS[3], ARGV[1]) == 0 then
	return n
end
n = redis.call("RPUSH", KEYS[2], ARGV[2])
if tonumber(ARGV[4]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[4])
	redis.call("PEXPIRE", KEYS[2], ARGV[4])
	redis.call("PEXPIRE", KEYS[3], ARGV[4])
	redis.call("ZADD", KEYS[4], ARGV[6], ARGV[5])
end
return n
`)

// Find loads the participant hash and its answers in one round trip.
func (s *Store) Find(ctx context.Context, callID string) (*domain.Participant, error) {
	pipe := s.client.Pipeline()
	fields := pipe.HGetAll(ctx, s.key(callID))
	answers := pipe.LRange(ctx, s.answersKey(callID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("%w: failed to get from redis: %w", domain.ErrStoreUnavailable, err)
	}

	return decodeParticipant(callID, fields.Val(), answers.Val())
}

func decodeParticipant(callID string, fields map[string]string, rawAnswers []string) (*domain.Participant, error) {
	if len(fields) == 0 {
		return nil, domain.ErrParticipantNotFound
	}

	p := &domain.Participant{
		CallID:      callID,
		Destination: fields["number"],
		Answers:     make([]domain.Answer, 0, len(rawAnswers)),
	}
	if created, err := time.Parse(time.RFC3339Nano, fields["createdAt"]); err == nil {
		p.CreatedAt = created
	}

	for _, raw := range rawAnswers {
		var a domain.Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answer of %s: %w", callID, err)
		}
		p.Answers = append(p.Answers, a)
	}
	return p, nil
}

// Create inserts the participant hash and indexes it, unless it already exists.
func (s *Store) Create(ctx context.Context, callID, destination string) error {
	err := createScript.Run(ctx, s.client,
		[]string{s.key(callID), s.indexKey()},
		callID,
		destination,
		time.Now().UTC().Format(time.RFC3339Nano),
		s.ttl.Milliseconds(),
		s.score(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: failed to create participant: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// AppendAnswer runs the check-and-append as a single Lua script, which Redis executes atomically.
func (s *Store) AppendAnswer(ctx context.Context, callID string, answer domain.Answer, limit int) (int, error) {
	data, err := json.Marshal(answer)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal answer: %w", err)
	}

	n, err := appendScript.Run(ctx, s.client,
		[]string{s.key(callID), s.answersKey(callID), s.refsKey(callID), s.indexKey()},
		answer.RecordingRef,
		data,
		limit,
		s.ttl.Milliseconds(),
		callID,
		s.score(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to append answer: %w", domain.ErrStoreUnavailable, err)
	}
	if n < 0 {
		return 0, domain.ErrParticipantNotFound
	}
	return n, nil
}

// List returns indexed participants, oldest index entry first.
// Expired entries are pruned from the index lazily.
func (s *Store) List(ctx context.Context) ([]*domain.Participant, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to prune expired participants: %w", domain.ErrStoreUnavailable, err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list participants: %w", domain.ErrStoreUnavailable, err)
	}

	pipe := s.client.Pipeline()
	fields := make([]*backend.MapStringStringCmd, len(ids))
	answers := make([]*backend.StringSliceCmd, len(ids))
	for i, id := range ids {
		fields[i] = pipe.HGetAll(ctx, s.key(id))
		answers[i] = pipe.LRange(ctx, s.answersKey(id), 0, -1)
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: failed to load participants: %w", domain.ErrStoreUnavailable, err)
		}
	}

	participants := make([]*domain.Participant, 0, len(ids))
	for i, id := range ids {
		p, err := decodeParticipant(id, fields[i].Val(), answers[i].Val())
		if errors.Is(err, domain.ErrParticipantNotFound) {
			continue // expired between index read and load
		}
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
