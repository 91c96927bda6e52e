package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{shared.ErrNotFound.Code, http.StatusNotFound},
		{commission.ErrPartyNotFound.Code, http.StatusNotFound},
		{commission.ErrMilestoneNotFound.Code, http.StatusNotFound},
		{escrow.ErrTransactionNotFound.Code, http.StatusNotFound},
		{shared.ErrForbidden.Code, http.StatusForbidden},
		{shared.ErrConcurrencyConflict.Code, http.StatusConflict},
		{commission.ErrInvalidSplit.Code, http.StatusBadRequest},
		{valueobject.ErrInvalidAmount.Code, http.StatusBadRequest},
		{shared.ErrCurrencyMismatch.Code, http.StatusBadRequest},
		{escrow.ErrInvalidWebhookSignature.Code, http.StatusBadRequest},
		{commission.ErrInvalidTransition.Code, http.StatusUnprocessableEntity},
		{escrow.ErrInvalidTransactionState.Code, http.StatusUnprocessableEntity},
		{commission.ErrAlreadyCompleted.Code, http.StatusUnprocessableEntity},
		{commission.ErrEscrowAlreadyAttached.Code, http.StatusUnprocessableEntity},
		{commission.ErrSplitTotalMustBeOneHundredPercent.Code, http.StatusUnprocessableEntity},
		{commission.ErrPartiesNotAccepted.Code, http.StatusUnprocessableEntity},
		{escrow.ErrMilestoneValueExceeded.Code, http.StatusUnprocessableEntity},
		{shared.ErrInsufficientBalance.Code, http.StatusUnprocessableEntity},
		{escrow.CodeGatewayFailure, http.StatusBadGateway},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		// Legacy codes resolve through their stable code
		{commission.LegacyCodeSplitTotal, http.StatusUnprocessableEntity},
		{escrow.LegacyCodeCurrencyMismatch, http.StatusBadRequest},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"SplitTotalDeveSerCemPorCento", commission.CodeSplitTotalMustBeOneHundredPercent},
		{"MoedaDiferenteDaContaEscrow", "CurrencyMismatch"},
		{"ValorPayoutNaoPodeUltrapassarMilestone", escrow.CodeMilestoneValueExceeded},
		// Stable codes pass through unchanged
		{commission.CodeSplitTotalMustBeOneHundredPercent, commission.CodeSplitTotalMustBeOneHundredPercent},
		{ErrCodeNotFound, ErrCodeNotFound},
		// Unknown codes pass through unchanged
		{"CUSTOM_ERROR", "CUSTOM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.input))
		})
	}
}

func TestLegacyAlias(t *testing.T) {
	alias, ok := LegacyAlias(commission.CodeSplitTotalMustBeOneHundredPercent)
	assert.True(t, ok)
	assert.Equal(t, "SplitTotalDeveSerCemPorCento", alias)

	_, ok = LegacyAlias(ErrCodeNotFound)
	assert.False(t, ok)
}

func TestFailure(t *testing.T) {
	resp := Failure(escrow.CodeMilestoneValueExceeded, "too much", "req-1")

	body, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, false, decoded["success"])
	errInfo := decoded["error"].(map[string]any)
	assert.Equal(t, "MilestoneValueExceeded", errInfo["code"])
	assert.Equal(t, "ValorPayoutNaoPodeUltrapassarMilestone", errInfo["legacy_code"])
	assert.Equal(t, "req-1", errInfo["request_id"])
	assert.Nil(t, decoded["data"])
}

func TestInvalid(t *testing.T) {
	details := []ValidationDetail{
		{Field: "title", Message: "This field is required"},
	}
	resp := Invalid("Request validation failed", "req-2", details)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, details, resp.Error.Details)
	assert.Empty(t, resp.Error.LegacyCode)
}

func TestPaged(t *testing.T) {
	resp := Paged([]string{"a"}, 41, 2, 20)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(41), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	empty := Paged(nil, 0, 1, 0)
	assert.Equal(t, 0, empty.Meta.TotalPages)
	assert.Equal(t, 2, PageMeta(40, 1, 20).TotalPages)
	assert.Equal(t, 1, PageMeta(1, 1, 20).TotalPages)
}
