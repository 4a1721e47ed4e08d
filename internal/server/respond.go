package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/logger"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail is what a client sees of an *errs.Error. The driver-level
// cause is logged, never rendered.
type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Table   string `json:"table,omitempty"`
	Column  string `json:"column,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func statusOf(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindUnknownTable, errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindUnknownColumn, errs.ErrKindIncompleteKey, errs.ErrKindInvalidValue:
		return http.StatusBadRequest
	case errs.ErrKindNoPrimaryKey, errs.ErrKindImmutablePrimaryKey:
		return http.StatusUnprocessableEntity
	case errs.ErrKindConstraintViolation:
		return http.StatusConflict
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Wrap(errs.ErrKindUnknown, "internal error", err)
	}
	status := statusOf(e.Kind)

	ev := logger.FromContext(r.Context()).DebugEvent()
	if status >= http.StatusInternalServerError {
		ev = logger.FromContext(r.Context()).ErrorEvent()
	}
	ev.Err(err).Str("kind", e.Kind.String()).Str("table", e.Table).Msg("request failed")

	detail := errorDetail{
		Kind:    e.Kind.String(),
		Message: e.Message,
		Table:   e.Table,
		Column:  e.Column,
		Detail:  e.Detail,
	}
	if status == http.StatusInternalServerError {
		detail.Detail = ""
	}
	writeJSON(w, status, errorBody{Error: detail})
}
