// Package idempotency rejects replays of write requests carrying an Idempotency-Key header.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/papertrail/internal/platform/httpx"
	"github.com/odyssey-erp/papertrail/internal/shared"
)

// Header carries the client-chosen key.
const Header = "Idempotency-Key"

const (
	keyPrefix  = "papertrail:idem"
	maxKeySize = 128
)

// ErrReplay indicates the key was already claimed.
var ErrReplay = fmt.Errorf("%w: idempotent request already processed", shared.ErrConflict)

// Store claims keys in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs the store. Claims expire after ttl.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// Claim records key under scope, failing with ErrReplay when it already exists.
func (s *Store) Claim(ctx context.Context, scope, key string) error {
	if s == nil || s.client == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	ok, err := s.client.SetNX(ctx, redisKey(scope, key), time.Now().UTC().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrReplay
	}
	return nil
}

// Release removes a claim, typically after the guarded request failed.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Del(ctx, redisKey(scope, key)).Err()
}

func redisKey(scope, key string) string {
	return keyPrefix + ":" + scope + ":" + key
}

// Middleware guards POST requests that carry Header. Claims are scoped to the principal
// and the request path; failed requests release their claim so the client may retry.
func Middleware(store *Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if store == nil || r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeySize {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "idempotency key too long")
				return
			}
			scope := r.URL.Path
			if p, ok := shared.PrincipalFromContext(r.Context()); ok {
				scope = p.ID.String() + ":" + scope
			}
			if err := store.Claim(r.Context(), scope, key); err != nil {
				if errors.Is(err, ErrReplay) {
					httpx.RespondError(w, err)
					return
				}
				if logger != nil {
					logger.Warn("idempotency claim", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			release := func() {
				if err := store.Release(context.WithoutCancel(r.Context()), scope, key); err != nil && logger != nil {
					logger.Warn("idempotency release", slog.Any("error", err))
				}
			}
			defer func() {
				if p := recover(); p != nil {
					release()
					panic(p)
				}
			}()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				release()
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
