package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
)

type memoryReplays struct {
	data    map[string]string
	ttls    map[string]time.Duration
	loadErr error
}

func newMemoryReplays() *memoryReplays {
	return &memoryReplays{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryReplays) Reserve(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryReplays) Load(_ context.Context, key string) (string, bool, error) {
	if m.loadErr != nil {
		return "", false, m.loadErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Store and Release fail on a cancelled context, as a network client would.
func (m *memoryReplays) Store(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memoryReplays) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

func (m *memoryReplays) IdempotencyKey(scope, id string) string {
	return scope + "#" + id
}

func verifyRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/abc/verify", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(WithUserID(req.Context(), "user-1"))
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload.Error.Code
}

func countingHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestIdempotencyRequiresUsableKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"missing", ""},
		{"too long", strings.Repeat("k", maxIdempotencyKeyLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			rec := httptest.NewRecorder()
			Idempotency(newMemoryReplays(), EscrowReplayTTL, nil)(countingHandler(&calls, http.StatusOK, `{}`)).
				ServeHTTP(rec, verifyRequest(tt.key, `{}`))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec.Body.Bytes()))
			assert.Zero(t, calls)
		})
	}
}

func TestIdempotencyNilStorePassesThrough(t *testing.T) {
	var calls int
	rec := httptest.NewRecorder()
	Idempotency(nil, EscrowReplayTTL, nil)(countingHandler(&calls, http.StatusOK, `{}`)).
		ServeHTTP(rec, verifyRequest("", `{}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newMemoryReplays()
	var calls int
	handler := Idempotency(store, EscrowReplayTTL, nil)(countingHandler(&calls, http.StatusOK, `{"data":{"verified":true}}`))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, verifyRequest("abc", `{}`))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get(replayedHeader))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, verifyRequest("abc", `{}`))

	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get(replayedHeader))
	assert.JSONEq(t, `{"data":{"verified":true}}`, second.Body.String())
	assert.Equal(t, 1, calls)

	for key, ttl := range store.ttls {
		assert.Equal(t, EscrowReplayTTL, ttl, key)
	}
}

func TestIdempotencyReplaysClientErrors(t *testing.T) {
	var calls int
	handler := Idempotency(newMemoryReplays(), DefaultReplayTTL, nil)(countingHandler(&calls, http.StatusConflict, `{"error":{"code":"INVALID_STATE"}}`))

	handler.ServeHTTP(httptest.NewRecorder(), verifyRequest("k", `{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, verifyRequest("k", `{}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newMemoryReplays()
	var calls int
	handler := Idempotency(store, EscrowReplayTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), verifyRequest("retry", `{}`))
	assert.Empty(t, store.data, "5xx must release the reservation")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, verifyRequest("retry", `{}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	store := newMemoryReplays()
	req := verifyRequest("busy", `{}`)
	store.data[store.IdempotencyKey(requestScope(req), "busy")] = inFlightMarker

	rec := httptest.NewRecorder()
	Idempotency(store, EscrowReplayTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run while the key is reserved")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec.Body.Bytes()))
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	var calls int
	handler := Idempotency(newMemoryReplays(), EscrowReplayTTL, nil)(countingHandler(&calls, http.StatusOK, `{}`))

	handler.ServeHTTP(httptest.NewRecorder(), verifyRequest("xyz", `{"winnerId":"a"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, verifyRequest("xyz", `{"winnerId":"b"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec.Body.Bytes()))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	var calls int
	handler := Idempotency(newMemoryReplays(), EscrowReplayTTL, nil)(countingHandler(&calls, http.StatusOK, `{}`))

	handler.ServeHTTP(httptest.NewRecorder(), verifyRequest("shared", `{}`))
	other := verifyRequest("shared", `{}`)
	other = other.WithContext(WithUserID(other.Context(), "user-2"))
	handler.ServeHTTP(httptest.NewRecorder(), other)

	assert.Equal(t, 2, calls)
}

func TestIdempotencyStoreFailureIsDependencyError(t *testing.T) {
	store := newMemoryReplays()
	store.loadErr = errors.New("redis down")
	req := verifyRequest("k", `{}`)
	store.data[store.IdempotencyKey(requestScope(req), "k")] = inFlightMarker

	rec := httptest.NewRecorder()
	Idempotency(store, EscrowReplayTTL, nil)(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, string(pkgerrors.CodeDependency), errorCode(t, rec.Body.Bytes()))
}

func TestIdempotencyReleasesKeyWhenHandlerPanics(t *testing.T) {
	store := newMemoryReplays()
	var calls int
	handler := Recoverer(nil)(Idempotency(store, EscrowReplayTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("ledger write failed")
		}
		w.WriteHeader(http.StatusOK)
	})))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, verifyRequest("panicky", `{}`))
	require.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Empty(t, store.data, "a panic must not leave the key reserved")

	retry := httptest.NewRecorder()
	handler.ServeHTTP(retry, verifyRequest("panicky", `{}`))
	assert.Equal(t, http.StatusOK, retry.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencySettlesAfterClientDisconnects(t *testing.T) {
	cases := []struct {
		name   string
		status int
	}{
		{"stores success", http.StatusOK},
		{"releases server error", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryReplays()
			req := verifyRequest("gone", `{}`)
			ctx, cancel := context.WithCancel(req.Context())
			req = req.WithContext(ctx)
			key := store.IdempotencyKey(requestScope(req), "gone")

			Idempotency(store, EscrowReplayTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				cancel()
				w.WriteHeader(tc.status)
			})).ServeHTTP(httptest.NewRecorder(), req)

			stored, found := store.data[key]
			if tc.status >= http.StatusInternalServerError {
				assert.False(t, found, "reservation must be released")
				return
			}
			require.True(t, found)
			assert.NotEqual(t, inFlightMarker, stored)
		})
	}
}
