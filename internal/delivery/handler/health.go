package handler

import (
	"context"
	"net/http"
	"time"

	"classifieds/pkg/logger"
	"classifieds/pkg/utils"
)

const readinessTimeout = 2 * time.Second

// Check reports whether a dependency can serve traffic.
type Check func(ctx context.Context) error

type HealthHandler struct {
	logger *logger.Loggers
	checks map[string]Check
}

func NewHealthHandler(logger *logger.Loggers, checks map[string]Check) *HealthHandler {
	return &HealthHandler{logger: logger, checks: checks}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	code := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.ErrorLogger.Error("readiness check failed", "check", name, utils.Err(err))
			results[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if code != http.StatusOK {
		state = "unavailable"
	}
	utils.RespondWithJSON(w, code, map[string]interface{}{"status": state, "checks": results})
}
