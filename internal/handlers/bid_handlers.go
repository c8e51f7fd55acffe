package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/senyabanana/bid-room-service/internal/models"
	"github.com/senyabanana/bid-room-service/internal/services"
	"github.com/senyabanana/bid-room-service/internal/utils"
	"github.com/senyabanana/bid-room-service/internal/ws"
)

// BidHandler - структура для обработки HTTP-запросов к реестру
// предложений. HTTP-поверхность делит реестр с вебсокет-шлюзом и
// обязана соблюдать те же инварианты.
type BidHandler struct {
	Service     *services.BidService
	Leaderboard *services.LeaderboardService
	Gateway     *ws.Gateway
	Logger      *log.Logger
	Timeout     time.Duration
	Secret      []byte
}

// NewBidHandler создает новый экземпляр BidHandler.
func NewBidHandler(service *services.BidService, leaderboard *services.LeaderboardService, gateway *ws.Gateway, logger *log.Logger, timeout time.Duration, secret []byte) *BidHandler {
	return &BidHandler{
		Service:     service,
		Leaderboard: leaderboard,
		Gateway:     gateway,
		Logger:      logger,
		Timeout:     timeout,
		Secret:      secret,
	}
}

func (h *BidHandler) respondError(w http.ResponseWriter, err error, fallback string) {
	if errorResponse, ok := err.(*models.ErrorResponse); ok {
		h.Logger.Println(err)
		utils.SendErrorResponse(w, errorResponse.StatusCode, errorResponse.Message)
		return
	}
	h.Logger.Println(err)
	utils.SendErrorResponse(w, http.StatusInternalServerError, fallback)
}

// SubmitBid обрабатывает подачу или перезапись предложения.
func (h *BidHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var req models.SubmitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, created, err := h.Service.SubmitOrUpdate(ctx, identity.ContractorAuthID, req)
	if err != nil {
		h.respondError(w, err, "failed to submit bid")
		return
	}

	h.Gateway.PublishMutation(ctx, req.BidPackageID, bid, created, identity.ContractorAuthID, nil)

	utils.SendJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"bid":     bid,
		"message": "Bid submitted successfully",
	})
}

// UpdateBid обрабатывает изменение полей существующего предложения.
func (h *BidHandler) UpdateBid(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bidID := r.PathValue("bidId")

	var req models.UpdateBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, err := h.Service.UpdateBid(ctx, identity.ContractorAuthID, bidID, req)
	if err != nil {
		h.respondError(w, err, "failed to update bid")
		return
	}

	var fieldsChanged []string
	if req.Price != nil {
		fieldsChanged = append(fieldsChanged, "price")
	}
	if req.Label != nil {
		fieldsChanged = append(fieldsChanged, "label")
	}
	h.Gateway.PublishMutation(ctx, bid.BidPackageID, bid, false, identity.ContractorAuthID, fieldsChanged)

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"bid":     bid,
		"message": "Bid updated successfully",
	})
}

// WithdrawBid обрабатывает отзыв предложения.
func (h *BidHandler) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bidID := r.PathValue("bidId")

	bid, err := h.Service.Withdraw(ctx, identity.ContractorAuthID, bidID)
	if err != nil {
		h.respondError(w, err, "failed to withdraw bid")
		return
	}

	h.Gateway.PublishMutation(ctx, bid.BidPackageID, bid, false, identity.ContractorAuthID, []string{"status"})

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Bid withdrawn successfully",
	})
}

// GetMyBids обрабатывает запрос списка предложений вызывающего.
func (h *BidHandler) GetMyBids(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bids, err := h.Service.GetMyBids(ctx, identity.ContractorAuthID, r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		h.respondError(w, err, "failed to retrieve bids")
		return
	}

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"bids":    bids,
	})
}

// GetPackageBids обрабатывает запрос предложений пакета вместе с
// агрегатами и числом зрителей комнаты.
func (h *BidHandler) GetPackageBids(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bidPackageID := r.PathValue("bidPackageId")
	query := r.URL.Query()

	bids, err := h.Service.GetPackageBids(ctx, identity.ContractorAuthID, bidPackageID, query.Get("limit"), query.Get("offset"), query.Get("status"))
	if err != nil {
		h.respondError(w, err, "failed to retrieve bids for package")
		return
	}

	statistics, err := h.Service.Statistics(ctx, bidPackageID)
	if err != nil {
		h.respondError(w, err, "failed to compute statistics")
		return
	}

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"bids":          bids,
		"statistics":    statistics,
		"activeViewers": h.Gateway.Presence.Count(bidPackageID),
	})
}

// GetPackageStatistics обрабатывает запрос агрегатов пакета.
func (h *BidHandler) GetPackageStatistics(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bidPackageID := r.PathValue("bidPackageId")

	_, invitation, err := h.Service.Gate.Authorize(ctx, identity.ContractorAuthID, bidPackageID)
	if err != nil {
		h.respondError(w, err, "failed to check invitation")
		return
	}
	if invitation == nil {
		utils.SendErrorResponse(w, http.StatusForbidden, "you are not authorized to view statistics for this package")
		return
	}

	statistics, err := h.Service.Statistics(ctx, bidPackageID)
	if err != nil {
		h.respondError(w, err, "failed to compute statistics")
		return
	}

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"statistics": statistics,
	})
}

// GetLeaderboard обрабатывает запрос таблицы лидеров пакета.
func (h *BidHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bidPackageID := r.PathValue("bidPackageId")

	entries, err := h.Leaderboard.Leaderboard(ctx, identity.ContractorAuthID, bidPackageID)
	if err != nil {
		h.respondError(w, err, "failed to build leaderboard")
		return
	}

	var deadline interface{}
	if pkg, err := h.Leaderboard.Packages.GetPackageByID(ctx, bidPackageID); err == nil && pkg != nil {
		deadline = pkg.Deadline
	}

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"bidPackageId": bidPackageID,
		"deadline":     deadline,
		"viewers":      h.Gateway.Presence.Count(bidPackageID),
		"bids":         entries,
	})
}

// GetHistory обрабатывает запрос истории событий пакета.
func (h *BidHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bidPackageID := r.PathValue("bidPackageId")

	_, invitation, err := h.Service.Gate.Authorize(ctx, identity.ContractorAuthID, bidPackageID)
	if err != nil {
		h.respondError(w, err, "failed to check invitation")
		return
	}
	if invitation == nil {
		utils.SendErrorResponse(w, http.StatusForbidden, "you are not authorized to view the history for this package")
		return
	}

	events, err := h.Leaderboard.History(ctx, bidPackageID)
	if err != nil {
		h.respondError(w, err, "failed to reconstruct history")
		return
	}

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// GetMyBidForPackage обрабатывает запрос своего предложения по пакету.
func (h *BidHandler) GetMyBidForPackage(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	bid, err := h.Service.GetMyBidForPackage(ctx, identity.ContractorAuthID, r.PathValue("bidPackageId"))
	if err != nil {
		h.respondError(w, err, "failed to load bid")
		return
	}

	message := "No bid found for this package"
	if bid != nil {
		message = "Bid found"
	}
	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"bid":     bid,
		"hasBid":  bid != nil,
		"message": message,
	})
}

// GetMyPackage обрабатывает запрос пакета, к которому приглашен вызывающий.
func (h *BidHandler) GetMyPackage(w http.ResponseWriter, r *http.Request) {
	identity, authErr := authenticate(r, h.Secret)
	if authErr != nil {
		utils.SendErrorResponse(w, authErr.StatusCode, authErr.Message)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	overview, err := h.Service.GetMyPackage(ctx, identity.ContractorAuthID)
	if err != nil {
		h.respondError(w, err, "failed to load bid package")
		return
	}

	if overview == nil {
		utils.SendJSON(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"bidPackage": nil,
			"message":    "No bid package assigned to you",
		})
		return
	}

	utils.SendJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"bidPackage": overview,
		"message":    "Bid package retrieved successfully",
	})
}
