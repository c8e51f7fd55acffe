package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/senyabanana/bid-room-service/internal/auth"
	"github.com/senyabanana/bid-room-service/internal/repository"
	"github.com/senyabanana/bid-room-service/internal/utils"
	"github.com/senyabanana/bid-room-service/internal/ws"
)

// AuthHandler выпускает токены доступа. Это тонкая замена внешнего
// провайдера личности, ровно достаточная, чтобы прогнать путь токена
// от выпуска до проверки на каждом сообщении.
type AuthHandler struct {
	Repo          repository.PackageRepository
	Gateway       *ws.Gateway
	Logger        *log.Logger
	Timeout       time.Duration
	Secret        []byte
	TokenDuration time.Duration
}

// NewAuthHandler создает новый экземпляр AuthHandler.
func NewAuthHandler(repo repository.PackageRepository, gateway *ws.Gateway, logger *log.Logger, timeout time.Duration, secret []byte, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{
		Repo:          repo,
		Gateway:       gateway,
		Logger:        logger,
		Timeout:       timeout,
		Secret:        secret,
		TokenDuration: tokenDuration,
	}
}

// Login выпускает токен для подрядчика по его почте.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, "email is required")
		return
	}

	contractor, err := h.Repo.GetContractorByEmail(ctx, req.Email)
	if err != nil {
		h.Logger.Println(err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, "failed to resolve contractor")
		return
	}
	if contractor == nil {
		utils.SendErrorResponse(w, http.StatusUnauthorized, "contractor does not exist")
		return
	}

	token, err := auth.GenerateToken(contractor.AuthID, contractor.Email, h.Secret, h.TokenDuration)
	if err != nil {
		h.Logger.Println(err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"accessToken": token,
	})
}

// Logout гасит все живые вебсокет-сессии вызывающего. Сам токен
// остается валидным до истечения срока, сервер его не отзывает.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	h.Gateway.Logout(identity.ContractorAuthID)

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}
