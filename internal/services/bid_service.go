package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/senyabanana/bid-room-service/internal/models"
	"github.com/senyabanana/bid-room-service/internal/repository"
	"github.com/senyabanana/bid-room-service/internal/utils"
)

// BidService - реестр предложений. Следит за инвариантом "не более
// одного активного предложения на пару (подрядчик, пакет)".
type BidService struct {
	Repo     repository.BidRepository
	Packages repository.PackageRepository
	Gate     *InvitationService
}

// NewBidService создает новый экземпляр BidService.
func NewBidService(repo repository.BidRepository, packages repository.PackageRepository, gate *InvitationService) *BidService {
	return &BidService{Repo: repo, Packages: packages, Gate: gate}
}

// SubmitOrUpdate подает предложение. Если у подрядчика уже есть активное
// предложение по пакету, перезаписываются его цена и подпись; иначе
// создается новая запись. Второе возвращаемое значение - признак того,
// что запись была создана, а не обновлена.
func (s *BidService) SubmitOrUpdate(ctx context.Context, authID string, req models.SubmitBidRequest) (*models.Bid, bool, error) {
	if req.BidPackageID == "" {
		return nil, false, models.NewErrorResponse(http.StatusBadRequest, "bidPackageId and price are required")
	}
	if req.Price <= 0 {
		return nil, false, models.NewErrorResponse(http.StatusBadRequest, "bid price must be greater than 0")
	}

	contractor, invitation, err := s.Gate.Authorize(ctx, authID, req.BidPackageID)
	if err != nil {
		return nil, false, err
	}
	if invitation == nil {
		return nil, false, models.NewErrorResponse(http.StatusForbidden, "you are not invited to bid on this package")
	}

	pkg, err := s.Packages.GetPackageByID(ctx, req.BidPackageID)
	if err != nil {
		return nil, false, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bid package")
	}
	if pkg == nil {
		return nil, false, models.NewErrorResponse(http.StatusNotFound, "bid package not found")
	}
	if pkg.Deadline != nil && pkg.Deadline.Before(time.Now()) {
		return nil, false, models.NewErrorResponse(http.StatusConflict, "bid package deadline has passed")
	}

	// Авторитетное чтение существующей записи непосредственно перед
	// действием, а не по закешированному состоянию.
	existing, err := s.Repo.GetActiveBid(ctx, contractor.ID, req.BidPackageID)
	if err != nil {
		return nil, false, models.NewErrorResponse(http.StatusInternalServerError, "failed to check existing bid")
	}

	if existing != nil {
		var label *string
		if req.Label != "" {
			label = &req.Label
		}
		bid, err := s.Repo.UpdateBid(ctx, existing.ID, &req.Price, label)
		if err != nil {
			return nil, false, models.NewErrorResponse(http.StatusInternalServerError, "failed to update bid")
		}
		return bid, false, nil
	}

	label := req.Label
	if label == "" {
		label = fmt.Sprintf("Bid for package %s", pkg.Code)
	}
	bid, err := s.Repo.CreateBid(ctx, contractor.ID, req.BidPackageID, req.Price, label)
	if err != nil {
		return nil, false, models.NewErrorResponse(http.StatusInternalServerError, "failed to create bid")
	}
	return bid, true, nil
}

// UpdateBid меняет поля существующего предложения. Менять можно только
// свои предложения. Дедлайн пакета здесь сознательно не проверяется:
// он ограничивает подачу новых предложений через SubmitOrUpdate, а не
// правку уже поданных.
func (s *BidService) UpdateBid(ctx context.Context, authID, bidID string, req models.UpdateBidRequest) (*models.Bid, error) {
	if bidID == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "bidId is required")
	}
	if req.Price != nil && *req.Price <= 0 {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "bid price must be greater than 0")
	}
	if req.Price == nil && req.Label == nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "no fields to update")
	}

	bid, err := s.ownBid(ctx, authID, bidID, "you can only update your own bids")
	if err != nil {
		return nil, err
	}

	updated, err := s.Repo.UpdateBid(ctx, bid.ID, req.Price, req.Label)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to update bid")
	}
	return updated, nil
}

// Withdraw отзывает предложение. Запись остается в реестре со статусом
// Withdrawn, история не теряется.
func (s *BidService) Withdraw(ctx context.Context, authID, bidID string) (*models.Bid, error) {
	if bidID == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "bidId is required")
	}

	bid, err := s.ownBid(ctx, authID, bidID, "you can only withdraw your own bids")
	if err != nil {
		return nil, err
	}

	withdrawn, err := s.Repo.WithdrawBid(ctx, bid.ID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to withdraw bid")
	}
	return withdrawn, nil
}

// ownBid находит предложение и проверяет, что оно принадлежит вызывающему.
func (s *BidService) ownBid(ctx context.Context, authID, bidID, forbiddenMsg string) (*models.Bid, error) {
	bid, err := s.Repo.GetBidByID(ctx, bidID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bid")
	}
	if bid == nil {
		return nil, models.NewErrorResponse(http.StatusNotFound, "bid not found")
	}

	contractor, err := s.Packages.GetContractorByAuthID(ctx, authID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to resolve contractor")
	}
	if contractor == nil || bid.ContractorID != contractor.ID {
		return nil, models.NewErrorResponse(http.StatusForbidden, forbiddenMsg)
	}
	return bid, nil
}

// Statistics считает агрегаты только по активным предложениям пакета.
func (s *BidService) Statistics(ctx context.Context, bidPackageID string) (*models.BidStatistics, error) {
	bids, err := s.Repo.GetActivePackageBids(ctx, bidPackageID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bids")
	}

	stats := &models.BidStatistics{TotalBids: len(bids)}
	if len(bids) == 0 {
		return stats, nil
	}

	var sum float64
	lowest, highest := bids[0].Price, bids[0].Price
	for _, bid := range bids {
		sum += bid.Price
		if bid.Price < lowest {
			lowest = bid.Price
		}
		if bid.Price > highest {
			highest = bid.Price
		}
	}
	stats.AveragePrice = sum / float64(len(bids))
	stats.LowestPrice = &lowest
	stats.HighestPrice = &highest
	return stats, nil
}

// GetPackageBids возвращает страницу предложений пакета. Доступно только
// приглашенным подрядчикам.
func (s *BidService) GetPackageBids(ctx context.Context, authID, bidPackageID, limitStr, offsetStr, status string) ([]models.Bid, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	_, invitation, err := s.Gate.Authorize(ctx, authID, bidPackageID)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, models.NewErrorResponse(http.StatusForbidden, "you are not authorized to view bids for this package")
	}

	var statuses []string
	if status != "" {
		if status != string(models.ActiveBid) && status != string(models.WithdrawnBid) {
			return nil, models.NewErrorResponse(http.StatusBadRequest, "invalid status filter, must be 'Active' or 'Withdrawn'")
		}
		statuses = []string{status}
	}

	bids, err := s.Repo.GetPackageBids(ctx, bidPackageID, limit, offset, statuses)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to retrieve bids")
	}
	return bids, nil
}

// GetMyBids возвращает страницу предложений вызывающего подрядчика.
func (s *BidService) GetMyBids(ctx context.Context, authID, limitStr, offsetStr string) ([]models.Bid, error) {
	limit, offset, err := utils.ParseLimitOffset(limitStr, offsetStr)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	contractor, err := s.Packages.GetContractorByAuthID(ctx, authID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to resolve contractor")
	}
	if contractor == nil {
		return nil, models.NewErrorResponse(http.StatusUnauthorized, "contractor does not exist")
	}

	bids, err := s.Repo.GetContractorBids(ctx, contractor.ID, limit, offset)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to retrieve bids")
	}
	return bids, nil
}

// GetMyBidForPackage возвращает активное предложение вызывающего по
// пакету, nil если его нет.
func (s *BidService) GetMyBidForPackage(ctx context.Context, authID, bidPackageID string) (*models.Bid, error) {
	contractor, invitation, err := s.Gate.Authorize(ctx, authID, bidPackageID)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, models.NewErrorResponse(http.StatusForbidden, "you are not invited to bid on this package")
	}

	bid, err := s.Repo.GetActiveBid(ctx, contractor.ID, bidPackageID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bid")
	}
	return bid, nil
}

// GetMyPackage возвращает пакет, к которому приглашен вызывающий, вместе
// с состоянием его участия. (nil, nil) если приглашений нет.
func (s *BidService) GetMyPackage(ctx context.Context, authID string) (*models.PackageOverview, error) {
	contractor, err := s.Packages.GetContractorByAuthID(ctx, authID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to resolve contractor")
	}
	if contractor == nil {
		return nil, models.NewErrorResponse(http.StatusUnauthorized, "contractor does not exist")
	}

	invitation, err := s.Packages.GetInvitationByContractor(ctx, contractor.ID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load invitation")
	}
	if invitation == nil {
		return nil, nil
	}

	pkg, err := s.Packages.GetPackageByID(ctx, invitation.BidPackageID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bid package")
	}
	if pkg == nil {
		return nil, nil
	}

	myBid, err := s.Repo.GetActiveBid(ctx, contractor.ID, pkg.ID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bid")
	}

	// Проверка дедлайна по часам на момент вызова, без блокировок:
	// вблизи границы значение может устареть к моменту подачи.
	overview := &models.PackageOverview{
		BidPackage: *pkg,
		HasBid:     myBid != nil,
		MyBid:      myBid,
		CanBid:     myBid == nil && (pkg.Deadline == nil || pkg.Deadline.After(time.Now())),
	}
	return overview, nil
}
