package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/label-ledger/internal/auth"
	"github.com/josh-kwaku/label-ledger/internal/handler"
	"github.com/josh-kwaku/label-ledger/internal/logging"
	"github.com/josh-kwaku/label-ledger/internal/repository"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotent-Replayed"
	idempotencyTTL    = 24 * time.Hour
	maxKeyLen         = 255
	maxBodyBytes      = 1 << 20
)

type idempotencyStore interface {
	Lookup(ctx context.Context, key string, userID uuid.UUID, now time.Time) (*repository.IdempotencyRecord, error)
	Store(ctx context.Context, rec *repository.IdempotencyRecord) error
}

type replayGuard struct {
	store idempotencyStore
	now   func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Idempotency makes mutating requests safe to retry. A repeated
// Idempotency-Key with the same body replays the stored response, a different
// body is a conflict, and a second request arriving while the first is still
// running is turned away. Responses of 500 and above are not stored so an
// infrastructure failure can be retried under the same key.
func Idempotency(store idempotencyStore) func(http.Handler) http.Handler {
	g := &replayGuard{
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		inFlight: make(map[string]struct{}),
	}
	return g.wrap
}

func (g *replayGuard) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(idempotencyHeader)
		switch {
		case key == "":
			handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
			return
		case len(key) > maxKeyLen:
			handler.RespondAppError(w, handler.ErrInvalidIdempotencyKey, nil)
			return
		}

		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			handler.RespondAppError(w, handler.ErrMissingToken, nil)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				handler.RespondAppError(w, handler.ErrPayloadTooLarge, nil)
				return
			}
			handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		slot := userID.String() + "/" + key
		if !g.acquire(slot) {
			handler.RespondAppError(w, handler.ErrRequestInProgress, nil)
			return
		}
		defer g.release(slot)

		log := logging.FromContext(r.Context()).With("idempotency_key", key)
		fingerprint := requestFingerprint(r.Method, r.URL.Path, body)
		now := g.now()

		cached, err := g.store.Lookup(r.Context(), key, userID, now)
		if err != nil {
			log.Error("idempotency lookup failed", "error", err)
			handler.RespondAppError(w, handler.ErrInternalError, nil)
			return
		}
		if cached != nil {
			if cached.RequestHash != fingerprint {
				handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
				return
			}
			replay(w, cached, log)
			return
		}

		rec := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			return
		}

		err = g.store.Store(r.Context(), &repository.IdempotencyRecord{
			Key:          key,
			UserID:       userID,
			RequestHash:  fingerprint,
			StatusCode:   rec.status,
			ResponseBody: rec.body.Bytes(),
			CreatedAt:    now,
			ExpiresAt:    now.Add(idempotencyTTL),
		})
		if err != nil {
			log.Error("idempotency store failed", "error", err)
		}
	})
}

func (g *replayGuard) acquire(slot string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[slot]; busy {
		return false
	}
	g.inFlight[slot] = struct{}{}
	return true
}

func (g *replayGuard) release(slot string) {
	g.mu.Lock()
	delete(g.inFlight, slot)
	g.mu.Unlock()
}

func replay(w http.ResponseWriter, rec *repository.IdempotencyRecord, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(rec.StatusCode)
	if _, err := w.Write(rec.ResponseBody); err != nil {
		log.Error("idempotent replay write failed", "error", err)
	}
}

// requestFingerprint binds a key to one method, path and body.
func requestFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	io.WriteString(h, method)
	io.WriteString(h, " ")
	io.WriteString(h, path)
	io.WriteString(h, "\n")
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
