package auth

import (
	"net/http"
	"time"

	"github.com/senyabanana/bid-room-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims - утверждения токена доступа: стандартный набор плюс
// идентификатор и почта подрядчика.
type Claims struct {
	jwt.RegisteredClaims
	ContractorAuthID string `json:"sub_id"`
	Email            string `json:"email"`
}

// Identity - проверенная личность подрядчика, извлеченная из токена.
type Identity struct {
	ContractorAuthID string
	Email            string
}

// GenerateToken выпускает подписанный HS256 токен доступа.
func GenerateToken(authID, email string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ContractorAuthID: authID,
		Email:            email,
	})

	return token.SignedString(secretKey)
}

// VerifyToken проверяет подпись и срок действия токена. Любая проблема с
// токеном возвращается как ошибка 401: вызывающая сторона не должна
// различать просроченный и поддельный токен.
func VerifyToken(tokenString string, secretKey []byte) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, models.NewErrorResponse(http.StatusUnauthorized, "unexpected token signing method")
		}
		return secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, models.NewErrorResponse(http.StatusUnauthorized, "invalid or expired token")
	}

	return &Identity{ContractorAuthID: claims.ContractorAuthID, Email: claims.Email}, nil
}
