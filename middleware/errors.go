package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	goGuard "github.com/MrEthical07/goGuard"
)

type errorBody struct {
	Error       string `json:"error"`
	ChallengeID string `json:"challenge_id,omitempty"`
}

// WriteError maps an Engine error to a status code and a JSON body. Rate
// limit rejections carry Retry-After; challenges carry X-Challenge-ID.
func WriteError(w http.ResponseWriter, err error) {
	status, body := classify(err)

	var rl *goGuard.RateLimitedError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.FormatInt(rl.RetryAfterSeconds(), 10))
		if rl.ChallengeID != "" {
			w.Header().Set("X-Challenge-ID", rl.ChallengeID)
			body.ChallengeID = rl.ChallengeID
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func classify(err error) (int, errorBody) {
	switch {
	case errors.Is(err, goGuard.ErrIPBlocked):
		return http.StatusForbidden, errorBody{Error: "ip_blocked"}
	case errors.Is(err, goGuard.ErrChallengeRequired):
		return http.StatusTooManyRequests, errorBody{Error: "challenge_required"}
	case errors.Is(err, goGuard.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{Error: "rate_limited"}
	case errors.Is(err, goGuard.ErrAccountLocked):
		return http.StatusLocked, errorBody{Error: "account_locked"}
	case errors.Is(err, goGuard.ErrTokenExpired):
		return http.StatusUnauthorized, errorBody{Error: "token_expired"}
	case errors.Is(err, goGuard.ErrInvalidCredentials),
		errors.Is(err, goGuard.ErrTokenInvalid),
		errors.Is(err, goGuard.ErrTokenReplayed),
		errors.Is(err, goGuard.ErrSessionNotFound):
		return http.StatusUnauthorized, errorBody{Error: "unauthorized"}
	case errors.Is(err, goGuard.ErrPermissionDenied):
		return http.StatusForbidden, errorBody{Error: "forbidden"}
	case errors.Is(err, goGuard.ErrCSRFValidationFailed):
		return http.StatusForbidden, errorBody{Error: "csrf_failed"}
	case errors.Is(err, goGuard.ErrInvalidInput),
		errors.Is(err, goGuard.ErrPasswordPolicy),
		errors.Is(err, goGuard.ErrPasswordReuse),
		errors.Is(err, goGuard.ErrUnknownRole),
		errors.Is(err, goGuard.ErrChallengeInvalid):
		return http.StatusBadRequest, errorBody{Error: "bad_request"}
	case errors.Is(err, goGuard.ErrAccountExists):
		return http.StatusConflict, errorBody{Error: "conflict"}
	case errors.Is(err, goGuard.ErrBackendUnavailable), errors.Is(err, goGuard.ErrEngineNotReady):
		return http.StatusServiceUnavailable, errorBody{Error: "unavailable"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal"}
	}
}

func fail(w http.ResponseWriter, r *http.Request, o options, err error) {
	if status, _ := classify(err); status >= http.StatusInternalServerError {
		o.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Error(err),
		)
	}
	WriteError(w, err)
}
