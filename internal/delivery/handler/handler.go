package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/service"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

type validatable interface {
	Validate() error
}

// base carries what every resource handler needs.
type base struct {
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func newBase(loggers *logger.Loggers, metrics *metrics.HandlerMetrics) base {
	return base{
		logger:  loggers,
		metrics: metrics,
		tracer:  otel.Tracer("classifieds/handler"),
	}
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, service.ErrInvalidID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, service.ErrInvalidID
	}
	return id, nil
}

func intQuery(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}

// decode reads a JSON body into req and validates it. On failure the error
// response has already been written.
func (b *base) decode(w http.ResponseWriter, r *http.Request, status *string, req validatable) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil && !errors.Is(err, io.EOF) {
		*status = "bad_request"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, errInvalidBody.Error())
		return false
	}

	if err := req.Validate(); err != nil {
		*status = "invalid_input"
		var fields validation.Errors
		if errors.As(err, &fields) {
			utils.RespondWithValidationErrors(w, flatten(fields))
			return false
		}
		utils.RespondWithErrorJSON(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func flatten(errs validation.Errors) map[string]string {
	out := make(map[string]string, len(errs))
	for field, err := range errs {
		out[field] = err.Error()
	}
	return out
}

type errorMapping struct {
	err    error
	code   int
	status string
}

// serviceErrors is matched in order, so an error wrapping several sentinels
// always maps to the first one listed.
var serviceErrors = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrNotParticipant, http.StatusForbidden, "forbidden"},
	{service.ErrUserBanned, http.StatusForbidden, "forbidden"},
	{service.ErrSelfModification, http.StatusForbidden, "forbidden"},
	{service.ErrAdNotFound, http.StatusNotFound, "not_found"},
	{service.ErrUserNotFound, http.StatusNotFound, "not_found"},
	{service.ErrChatNotFound, http.StatusNotFound, "not_found"},
	{service.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
	{service.ErrInvalidStatus, http.StatusConflict, "conflict"},
	{service.ErrAdNotEditable, http.StatusConflict, "conflict"},
	{service.ErrAdNotActive, http.StatusConflict, "conflict"},
	{service.ErrEmailTaken, http.StatusConflict, "conflict"},
	{service.ErrInvalidID, http.StatusBadRequest, "bad_request"},
	{service.ErrEmptyMessage, http.StatusBadRequest, "bad_request"},
	{service.ErrMessageTooLong, http.StatusBadRequest, "bad_request"},
	{service.ErrWeakPassword, http.StatusBadRequest, "bad_request"},
	{service.ErrSelfChat, http.StatusBadRequest, "bad_request"},
	{service.ErrInvalidRole, http.StatusBadRequest, "bad_request"},
	{service.ErrInvalidSignature, http.StatusBadRequest, "bad_request"},
	{service.ErrPaymentProvider, http.StatusBadGateway, "provider_error"},
}

// fail writes the HTTP response for a service error. Unknown errors are
// logged and reported as 500 without leaking details.
func (b *base) fail(w http.ResponseWriter, span trace.Span, status *string, op string, err error) {
	span.RecordError(err)

	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			*status = m.status
			if m.code >= http.StatusInternalServerError {
				b.logger.ErrorLogger.Error(op+" failed", utils.Err(err))
			}
			utils.RespondWithErrorJSON(w, m.code, m.err.Error())
			return
		}
	}

	*status = "error"
	b.logger.ErrorLogger.Error(op+" failed", utils.Err(err))
	utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
}
