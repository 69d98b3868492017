package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const modelListKey = "threadkeep:models"

// Store caches the provider's model catalog so the model picker does
// not hit the inference host on every page load. All cache failures are
// soft: an error and a miss look the same to the caller, and only the
// provider's own failures ever surface.
//
// A nil *Store is valid and behaves as an always-miss cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	if addr == "" {
		return nil
	}
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func (s *Store) GetModels(ctx context.Context) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	raw, err := s.client.Get(ctx, modelListKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Msg("model cache read failed")
		}
		return nil, false
	}
	var models []string
	if err := json.Unmarshal(raw, &models); err != nil {
		log.Debug().Err(err).Msg("model cache entry corrupt")
		return nil, false
	}
	return models, true
}

func (s *Store) SetModels(ctx context.Context, models []string) {
	if s == nil {
		return
	}
	raw, err := json.Marshal(models)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, modelListKey, raw, s.ttl).Err(); err != nil {
		log.Debug().Err(err).Msg("model cache write failed")
	}
}
