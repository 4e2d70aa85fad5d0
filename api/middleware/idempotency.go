package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/eventprize-backend/api/responses"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
	"github.com/angelmondragon/eventprize-backend/pkg/logger"
)

const (
	// EscrowReplayTTL keeps responses for routes that move money.
	EscrowReplayTTL = 7 * 24 * time.Hour
	// DefaultReplayTTL covers the remaining idempotent writes.
	DefaultReplayTTL = 24 * time.Hour

	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	inFlightMarker       = "pending"
	maxIdempotencyKeyLen = 255
)

// ReplayStore keeps one reservation or finished response per key.
type ReplayStore interface {
	Reserve(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Load(ctx context.Context, key string) (string, bool, error)
	Store(ctx context.Context, key, value string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	IdempotencyKey(scope, id string) string
}

// replay is what gets persisted once the handler finishes.
type replay struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

func (r replay) writeTo(w http.ResponseWriter) {
	if r.ContentType != "" {
		w.Header().Set("Content-Type", r.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}

// Idempotency makes a write route safe to retry. The caller must send an
// Idempotency-Key; the first request reserves it, runs the handler and stores
// the response for ttl. Repeats with the same body get the stored response,
// repeats with a different body or while the first is running get 409.
// Responses of 500 and above, and handler panics, release the key so the
// client can retry.
// A nil store disables the middleware.
func Idempotency(store ReplayStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			switch {
			case id == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(id) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "Idempotency-Key longer than %d characters", maxIdempotencyKeyLen))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(requestScope(r), id)
			fingerprint := fingerprintOf(body)

			reserved, err := store.Reserve(ctx, key, inFlightMarker, ttl)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				serveReplay(ctx, store, logg, w, key, fingerprint)
				return
			}

			// Settling the key must outlive a client that hangs up mid-request.
			settleCtx := context.WithoutCancel(ctx)
			defer func() {
				if rec := recover(); rec != nil {
					release(settleCtx, store, logg, key)
					panic(rec)
				}
			}()

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if capture.statusCode() >= http.StatusInternalServerError {
				release(settleCtx, store, logg, key)
				return
			}

			encoded, err := json.Marshal(replay{
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				Fingerprint: fingerprint,
			})
			if err == nil {
				err = store.Store(settleCtx, key, string(encoded), ttl)
			}
			if err != nil {
				warn(ctx, logg, "idempotency.persist_failed", key, err)
			}
		})
	}
}

// release frees a reservation whose request produced nothing worth replaying.
func release(ctx context.Context, store ReplayStore, logg *logger.Logger, key string) {
	if err := store.Release(ctx, key); err != nil {
		warn(ctx, logg, "idempotency.release_failed", key, err)
	}
}

func serveReplay(ctx context.Context, store ReplayStore, logg *logger.Logger, w http.ResponseWriter, key, fingerprint string) {
	stored, found, err := store.Load(ctx, key)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	if !found || stored == inFlightMarker {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
		return
	}

	var prior replay
	if err := json.Unmarshal([]byte(stored), &prior); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if prior.Fingerprint != fingerprint {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	prior.writeTo(w)
}

// requestScope keeps keys from colliding across callers and routes.
func requestScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func warn(ctx context.Context, logg *logger.Logger, msg, key string, err error) {
	if logg == nil {
		return
	}
	logg.Warn(logg.WithFields(ctx, map[string]any{"idempotency_key": key, "error": err.Error()}), msg)
}

type captureWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
