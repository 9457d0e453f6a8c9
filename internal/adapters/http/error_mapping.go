package httpadapter

import (
	"net/http"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrInvalidSession):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrTurnLimitReached):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
