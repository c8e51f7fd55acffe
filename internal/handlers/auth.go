package handlers

import (
	"net/http"
	"strings"

	"github.com/senyabanana/bid-room-service/internal/auth"
	"github.com/senyabanana/bid-room-service/internal/models"
)

// authenticate извлекает и проверяет bearer-токен запроса.
func authenticate(r *http.Request, secret []byte) (*auth.Identity, *models.ErrorResponse) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, models.NewErrorResponse(http.StatusUnauthorized, "authorization header is required")
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return nil, models.NewErrorResponse(http.StatusUnauthorized, "authorization header must use the Bearer scheme")
	}

	identity, err := auth.VerifyToken(token, secret)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusUnauthorized, "invalid or expired token")
	}
	return identity, nil
}
