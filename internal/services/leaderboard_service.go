package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/senyabanana/bid-room-service/internal/models"
	"github.com/senyabanana/bid-room-service/internal/repository"
)

// LeaderboardService строит таблицу лидеров и историю событий пакета.
// Оба представления выводятся из записей реестра при каждом запросе и
// нигде не кешируются.
type LeaderboardService struct {
	Repo     repository.BidRepository
	Packages repository.PackageRepository
	Gate     *InvitationService
}

// NewLeaderboardService создает новый экземпляр LeaderboardService.
func NewLeaderboardService(repo repository.BidRepository, packages repository.PackageRepository, gate *InvitationService) *LeaderboardService {
	return &LeaderboardService{Repo: repo, Packages: packages, Gate: gate}
}

// Leaderboard возвращает упорядоченную анонимизированную таблицу лидеров:
// активные предложения по возрастанию цены, при равных ценах выше тот,
// кто подал раньше. Своя строка получает псевдоним "Me", остальные -
// "Contractor {rank}".
func (s *LeaderboardService) Leaderboard(ctx context.Context, authID, bidPackageID string) ([]models.LeaderboardEntry, error) {
	if bidPackageID == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "bidPackageId is required")
	}

	contractor, invitation, err := s.Gate.Authorize(ctx, authID, bidPackageID)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, models.NewErrorResponse(http.StatusForbidden, "you are not authorized to view the leaderboard for this package")
	}

	pkg, err := s.Packages.GetPackageByID(ctx, bidPackageID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bid package")
	}
	if pkg == nil {
		return nil, models.NewErrorResponse(http.StatusNotFound, "bid package not found")
	}

	bids, err := s.Repo.GetActivePackageBids(ctx, bidPackageID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bids")
	}

	return RankBids(bids, contractor.ID), nil
}

// RankBids сортирует активные предложения и присваивает места и псевдонимы.
func RankBids(bids []models.Bid, requesterContractorID string) []models.LeaderboardEntry {
	sorted := make([]models.Bid, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Price != sorted[j].Price {
			return sorted[i].Price < sorted[j].Price
		}
		return sorted[i].SubmittedOn.Before(sorted[j].SubmittedOn)
	})

	entries := make([]models.LeaderboardEntry, 0, len(sorted))
	for i, bid := range sorted {
		isMine := bid.ContractorID == requesterContractorID
		alias := fmt.Sprintf("Contractor %d", i+1)
		if isMine {
			alias = "Me"
		}
		entries = append(entries, models.LeaderboardEntry{
			Rank:            i + 1,
			BidID:           bid.ID,
			ContractorAlias: alias,
			Price:           bid.Price,
			IsMine:          isMine,
			SubmittedOn:     bid.SubmittedOn,
		})
	}
	return entries
}

// History восстанавливает хронологию событий пакета из записей реестра.
func (s *LeaderboardService) History(ctx context.Context, bidPackageID string) ([]models.BidEvent, error) {
	if bidPackageID == "" {
		return nil, models.NewErrorResponse(http.StatusBadRequest, "bidPackageId is required")
	}

	pkg, err := s.Packages.GetPackageByID(ctx, bidPackageID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bid package")
	}
	if pkg == nil {
		return nil, models.NewErrorResponse(http.StatusNotFound, "bid package not found")
	}

	bids, err := s.Repo.GetAllPackageBids(ctx, bidPackageID)
	if err != nil {
		return nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to load bids")
	}

	return ReconstructEvents(bids), nil
}

// ReconstructEvents выводит по одному событию на каждую запись реестра:
// withdrawn для отозванных, updated если запись меняли после подачи,
// иначе submitted. События упорядочены по отображаемой метке времени.
func ReconstructEvents(bids []models.Bid) []models.BidEvent {
	events := make([]models.BidEvent, 0, len(bids))
	for _, bid := range bids {
		eventType := models.SubmittedEvent
		if bid.Status == models.WithdrawnBid {
			eventType = models.WithdrawnEvent
		} else if !bid.UpdatedOn.Equal(bid.SubmittedOn) {
			eventType = models.UpdatedEvent
		}

		ts := bid.UpdatedOn
		if ts.IsZero() {
			ts = bid.SubmittedOn
		}

		events = append(events, models.BidEvent{
			Timestamp:    ts,
			Type:         eventType,
			BidID:        bid.ID,
			ContractorID: bid.ContractorID,
			Price:        bid.Price,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}
