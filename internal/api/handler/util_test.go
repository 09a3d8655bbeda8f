package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qaddoumi/tahweel/internal/domain"
)

func TestRespondDomainErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", domain.Validationf("amount must be positive"), http.StatusBadRequest},
		{"invalid_transition", domain.InvalidTransitionf("cannot complete while REJECTED"), http.StatusBadRequest},
		{"policy_violation", domain.PolicyViolationf("bank not allowed"), http.StatusBadRequest},
		{"not_found", domain.NotFoundf("order not found"), http.StatusNotFound},
		{"storage", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
			rec := httptest.NewRecorder()

			RespondDomainError(rec, req, tc.err, "order")

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}
