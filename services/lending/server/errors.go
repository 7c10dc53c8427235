package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"yeifinance/native/lending"
	"yeifinance/native/token"
	"yeifinance/native/vault"
)

var (
	errInvalidRequest  = errors.New("invalid request")
	errForbidden       = errors.New("caller may not act for this account")
	errUnauthenticated = errors.New("authentication required")
	errVaultDisabled   = errors.New("vault is not deployed")
	errStreamDisabled  = errors.New("event stream is not enabled")
	errEventsDisabled  = errors.New("event index is not enabled")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, fmt.Sprintf(format, args...))
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorTable is matched in order, so wrapping errors must precede the errors
// they wrap. A flash loan that could not pull its repayment wraps the token
// error that caused it.
var errorTable = []errorMapping{
	{errInvalidRequest, http.StatusBadRequest, "InvalidRequest"},
	{errUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
	{errForbidden, http.StatusForbidden, "Forbidden"},
	{errVaultDisabled, http.StatusNotFound, "VaultDisabled"},
	{errStreamDisabled, http.StatusNotFound, "StreamDisabled"},
	{errEventsDisabled, http.StatusNotFound, "EventsDisabled"},

	{lending.ErrZeroAmount, http.StatusBadRequest, "ZeroAmount"},
	{lending.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
	{lending.ErrInvalidAccount, http.StatusBadRequest, "InvalidAccount"},
	{lending.ErrFlashLoanNotRepaid, http.StatusUnprocessableEntity, "FlashLoanNotRepaid"},
	{lending.ErrInsufficientCollateral, http.StatusUnprocessableEntity, "InsufficientCollateral"},
	{lending.ErrExcessRepayment, http.StatusUnprocessableEntity, "ExcessRepayment"},
	{lending.ErrInsufficientDeposit, http.StatusUnprocessableEntity, "InsufficientDeposit"},
	{lending.ErrArithmeticOverflow, http.StatusUnprocessableEntity, "ArithmeticOverflow"},
	{lending.ErrReentrantCall, http.StatusConflict, "ReentrantCall"},
	{lending.ErrNotConfigured, http.StatusServiceUnavailable, "NotConfigured"},

	{vault.ErrUnauthorized, http.StatusForbidden, "Unauthorized"},
	{vault.ErrZeroAmount, http.StatusBadRequest, "ZeroAmount"},
	{vault.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
	{vault.ErrInvalidAccount, http.StatusBadRequest, "InvalidAccount"},
	{vault.ErrInsufficientShares, http.StatusUnprocessableEntity, "InsufficientShares"},
	{vault.ErrNothingToHarvest, http.StatusUnprocessableEntity, "NothingToHarvest"},
	{vault.ErrFeeTooHigh, http.StatusBadRequest, "FeeTooHigh"},
	{vault.ErrArithmeticOverflow, http.StatusUnprocessableEntity, "ArithmeticOverflow"},
	{vault.ErrNotInitialised, http.StatusServiceUnavailable, "NotConfigured"},

	{token.ErrInsufficientBalance, http.StatusUnprocessableEntity, "InsufficientBalance"},
	{token.ErrInsufficientAllowance, http.StatusUnprocessableEntity, "InsufficientAllowance"},
	{token.ErrSupplyOverflow, http.StatusUnprocessableEntity, "SupplyOverflow"},
	{token.ErrUnauthorized, http.StatusForbidden, "Unauthorized"},
	{token.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
	{token.ErrZeroAddress, http.StatusBadRequest, "InvalidAccount"},
	{token.ErrUnknownToken, http.StatusNotFound, "UnknownToken"},

	{context.DeadlineExceeded, http.StatusGatewayTimeout, "Timeout"},
	{context.Canceled, http.StatusRequestTimeout, "Canceled"},
}

// classify maps err onto an HTTP status and a stable code. Unknown errors are
// internal.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "Internal"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"action", action,
			"path", r.URL.Path,
			"error", err,
		)
		message = http.StatusText(status)
	}
	writeJSONError(w, status, code, message)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(status)
	}
	payload, marshalErr := json.Marshal(errorResponse{Error: message, Code: code})
	if marshalErr != nil {
		replacer := strings.NewReplacer(
			"\\", "\\\\",
			"\"", "\\\"",
			"\n", "\\n",
			"\r", "\\r",
			"\t", "\\t",
		)
		payload = []byte(fmt.Sprintf("{\"error\":\"%s\",\"code\":\"%s\"}", replacer.Replace(message), code))
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
