package statestore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

//go:embed save.lua
var saveScriptSource string

var saveScript = redis.NewScript(saveScriptSource)

const defaultKeyPrefix = "backplane:"

// redisRecord is the JSON stored per hash field.
type redisRecord struct {
	Extension string `json:"extension"`
	State     string `json:"state"`
	Version   int64  `json:"version"`
	UpdatedAt int64  `json:"updated_at"`
}

func (r redisRecord) record() Record {
	return Record{
		Extension: r.Extension,
		State:     r.State,
		Version:   r.Version,
		UpdatedAt: time.UnixMilli(r.UpdatedAt),
	}
}

type redisStore struct {
	client redis.Cmdable
	key    string
}

// RedisOption configures a Redis store.
type RedisOption func(*redisStore)

// WithKeyPrefix namespaces the hash holding the records.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *redisStore) {
		s.key = prefix + "extension-states"
	}
}

// NewRedisStore creates a store keeping all records in one Redis hash.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) Store {
	s := &redisStore{
		client: client,
		key:    defaultKeyPrefix + "extension-states",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *redisStore) Save(ctx context.Context, extension, state string) (Record, error) {
	now := time.Now()
	res, err := saveScript.Run(ctx, s.client, []string{s.key}, extension, state, now.UnixMilli()).Result()
	if err != nil {
		log.Error().Err(err).Str("extension", extension).Msg("redis save script failed")
		return Record{}, fmt.Errorf("save state of %s: %w", extension, err)
	}
	version, ok := res.(int64)
	if !ok {
		return Record{}, fmt.Errorf("save state of %s: unexpected script result %T", extension, res)
	}
	log.Debug().Str("extension", extension).Str("state", state).Int64("version", version).Msg("state saved")
	return Record{Extension: extension, State: state, Version: version, UpdatedAt: time.UnixMilli(now.UnixMilli())}, nil
}

func (s *redisStore) Load(ctx context.Context, extension string) (Record, error) {
	raw, err := s.client.HGet(ctx, s.key, extension).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, extension)
		}
		return Record{}, fmt.Errorf("load state of %s: %w", extension, err)
	}
	return decode(extension, raw)
}

func (s *redisStore) List(ctx context.Context) ([]Record, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	out := make([]Record, 0, len(all))
	for name, raw := range all {
		rec, err := decode(name, raw)
		if err != nil {
			log.Warn().Str("extension", name).Err(err).Msg("skipping malformed state record")
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, extension string) error {
	if err := s.client.HDel(ctx, s.key, extension).Err(); err != nil {
		return fmt.Errorf("delete state of %s: %w", extension, err)
	}
	return nil
}

func decode(extension, raw string) (Record, error) {
	var rr redisRecord
	if err := json.Unmarshal([]byte(raw), &rr); err != nil {
		return Record{}, fmt.Errorf("decode state of %s: %w", extension, err)
	}
	return rr.record(), nil
}
