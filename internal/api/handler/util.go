package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/qaddoumi/tahweel/internal/api/middleware"
	"github.com/qaddoumi/tahweel/internal/api/problem"
	"github.com/qaddoumi/tahweel/internal/domain"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondDomainError maps a service error onto the HTTP surface using its
// domain kind. Storage errors are logged and masked.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error, slug string) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		RespondError(w, r, http.StatusBadRequest, slug+"/invalid-request", err.Error())
	case domain.KindNotFound:
		RespondError(w, r, http.StatusNotFound, slug+"/not-found", err.Error())
	case domain.KindInvalidTransition:
		RespondError(w, r, http.StatusBadRequest, slug+"/invalid-transition", err.Error())
	case domain.KindPolicyViolation:
		RespondError(w, r, http.StatusBadRequest, slug+"/policy-violation", err.Error())
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("request failed", zap.Error(err), zap.String("path", r.URL.Path))
		RespondError(w, r, http.StatusInternalServerError, slug+"/internal", "internal error")
	}
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == middleware.RoleAdmin, nil
}

// exchangeScope returns the exchange an exchange-role token is bound to,
// or uuid.Nil for admin tokens which may act on any exchange.
func exchangeScope(r *http.Request) (uuid.UUID, error) {
	if middleware.UserRoleFromContext(r.Context()) == middleware.RoleAdmin {
		return uuid.Nil, nil
	}
	raw := middleware.ExchangeIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, errors.New("missing exchange_id in auth context")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("invalid exchange_id in auth context")
	}
	return id, nil
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
