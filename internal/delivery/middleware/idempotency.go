package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"classifieds/internal/infrastructure/cache"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	IdempotentReplayHeader = "Idempotent-Replayed"

	idempotencyTTL = 24 * time.Hour
	// A reservation outlives any handler but expires quickly if the process
	// dies before releasing or completing it.
	idempotencyInFlightTTL = time.Minute
	idempotencyPending     = "pending"
	idempotencyWriteWait   = 5 * time.Second
	maxIdempotencyKey      = 128
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// recorder writes through to the client while keeping a copy of the response.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

// Idempotency makes retried POSTs safe. Keys are scoped by the authenticated
// user, so it must run after Authenticate. The first request reserves the key;
// a retry receives the stored response and a concurrent duplicate gets 409.
// Server errors release the key so the client can try again.
func Idempotency(store cache.Cache, loggers *logger.Loggers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				utils.RespondWithErrorJSON(w, http.StatusBadRequest, "idempotency key is too long")
				return
			}

			id, _ := IdentityFrom(r.Context())
			storeKey := fmt.Sprintf("idempotency:%d:%s:%s", id.UserID, r.URL.Path, key)

			reserved, err := store.SetNX(r.Context(), storeKey, idempotencyPending, idempotencyInFlightTTL)
			if err != nil {
				loggers.ErrorLogger.Error("idempotency reserve failed", "key", storeKey, utils.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			if !reserved {
				replay(w, r, store, storeKey, loggers)
				return
			}

			rec := &recorder{ResponseWriter: w}
			completed := false
			defer func() {
				// Runs after a panic too; Recoverer sits further out.
				finish(r.Context(), store, storeKey, rec, completed, loggers)
			}()

			next.ServeHTTP(rec, r)
			completed = true
		})
	}
}

// finish releases or completes a reservation. The request context may already
// be cancelled by a disconnected client, so the writes use a detached one.
func finish(reqCtx context.Context, store cache.Cache, key string, rec *recorder, completed bool, loggers *logger.Loggers) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), idempotencyWriteWait)
	defer cancel()

	if !completed || rec.status == 0 || rec.status >= http.StatusInternalServerError {
		if err := store.Delete(ctx, key); err != nil {
			loggers.ErrorLogger.Error("idempotency release failed", "key", key, utils.Err(err))
		}
		return
	}

	stored, err := json.Marshal(storedResponse{
		Status:      rec.status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
	})
	if err == nil {
		err = store.Set(ctx, key, string(stored), idempotencyTTL)
	}
	if err != nil {
		loggers.ErrorLogger.Error("idempotency store failed", "key", key, utils.Err(err))
		if err := store.Delete(ctx, key); err != nil {
			loggers.ErrorLogger.Error("idempotency release failed", "key", key, utils.Err(err))
		}
	}
}

func replay(w http.ResponseWriter, r *http.Request, store cache.Cache, key string, loggers *logger.Loggers) {
	value, err := store.Get(r.Context(), key)
	if errors.Is(err, cache.ErrCacheMiss) {
		// Released between SETNX and GET; the original attempt failed.
		utils.RespondWithErrorJSON(w, http.StatusConflict, "request with this idempotency key failed, retry")
		return
	}
	if err != nil {
		loggers.ErrorLogger.Error("idempotency lookup failed", "key", key, utils.Err(err))
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if value == idempotencyPending {
		utils.RespondWithErrorJSON(w, http.StatusConflict, "request with this idempotency key is in progress")
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		loggers.ErrorLogger.Error("idempotency record is corrupt", "key", key, utils.Err(err))
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Body)
}
