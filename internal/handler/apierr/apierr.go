// Package apierr maps client errors onto HTTP responses.
package apierr

import (
	"context"
	"errors"
	"net/http"

	"github.com/zhouzirui/fiora-client/backend/internal/service/fiora"
	"github.com/zhouzirui/fiora-client/backend/pkg/utils"
)

// Status 根据错误类型选择状态码
func Status(err error) int {
	var ackErr *fiora.AckError
	switch {
	case errors.Is(err, fiora.ErrSealed):
		return http.StatusTooManyRequests
	case errors.Is(err, fiora.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.As(err, &ackErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Respond writes err as a JSON error. Application-level errors carry the
// server's own text.
func Respond(w http.ResponseWriter, err error) {
	msg := err.Error()
	var ackErr *fiora.AckError
	if errors.As(err, &ackErr) {
		msg = ackErr.Message
	}
	utils.RespondError(w, Status(err), msg)
}
