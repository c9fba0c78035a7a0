package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/idempotency"
)

// IdempotencyKeyHeader is the optional request header that makes a POST safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// idempotent replays the stored response for a repeated Idempotency-Key on the
// same route with the same body, and rejects reuse of a key with a different
// body (409 IDEMPOTENCY_KEY_REUSED). The slot is reserved before the handler
// runs, so a duplicate arriving while the first request is in flight gets 409
// IDEMPOTENCY_REQUEST_IN_PROGRESS instead of running twice. Only 2xx responses
// are recorded; anything else releases the slot for a retry. Requests without
// the header pass through.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if key == "" || s.idem == nil {
			next.ServeHTTP(w, r)
			return
		}
		sub, ok := s.subject(w, r)
		if !ok {
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, http.StatusRequestEntityTooLarge, "BAD_REQUEST", "request body too large", nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		bodyHash := hashBody(body)

		fp := idempotency.Fingerprint{
			Key:     idempotency.Key(key),
			Subject: sub,
			Method:  r.Method,
			Route:   r.URL.Path,
		}
		rec, reserved, err := s.idem.Reserve(r.Context(), fp, idempotency.Record{
			BodyHash:  bodyHash,
			CreatedAt: s.clk.Now().UTC(),
		})
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if !reserved {
			s.replay(w, r, rec, bodyHash)
			return
		}

		completed := false
		defer func() {
			if !completed {
				s.releaseSlot(r, fp)
			}
		}()

		var captured bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&captured)
		next.ServeHTTP(ww, r)

		if ww.Status() < 200 || ww.Status() >= 300 {
			return
		}
		if err := s.idem.Put(r.Context(), fp, idempotency.Record{
			BodyHash:    bodyHash,
			StatusCode:  ww.Status(),
			ContentType: ww.Header().Get("Content-Type"),
			Body:        captured.Bytes(),
			CreatedAt:   s.clk.Now().UTC(),
		}); err != nil {
			s.log.Warn("idempotency record not stored",
				zap.String("route", fp.Route),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err),
			)
			return
		}
		completed = true
	})
}

// replay answers a request whose slot is already taken.
func (s *Server) replay(w http.ResponseWriter, r *http.Request, rec idempotency.Record, bodyHash string) {
	switch {
	case rec.BodyHash != bodyHash:
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSED", "idempotency key reuse with different payload", nil)
	case rec.Pending():
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_REQUEST_IN_PROGRESS", "a request with this idempotency key is still in progress", nil)
	default:
		if rec.ContentType != "" {
			w.Header().Set("Content-Type", rec.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.Body)
	}
}

// releaseSlot frees a reservation whose request did not succeed. It runs on a
// context detached from the request so a cancelled client still frees the key.
func (s *Server) releaseSlot(r *http.Request, fp idempotency.Fingerprint) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := s.idem.Release(ctx, fp); err != nil {
		s.log.Warn("idempotency reservation not released",
			zap.String("route", fp.Route),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
}

func hashBody(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
