package services

import (
	"context"
	"net/http"

	"github.com/senyabanana/bid-room-service/internal/models"
	"github.com/senyabanana/bid-room-service/internal/repository"
)

// InvitationService отвечает на единственный вопрос: приглашен ли
// подрядчик к пакету. Через него проходит каждая мутация реестра и
// каждое чтение чужих данных по пакету.
type InvitationService struct {
	Repo repository.PackageRepository
}

// NewInvitationService создает новый экземпляр InvitationService.
func NewInvitationService(repo repository.PackageRepository) *InvitationService {
	return &InvitationService{Repo: repo}
}

// Authorize находит подрядчика по идентификатору из токена и его
// приглашение к пакету. Отсутствие приглашения не ошибка: возвращается
// (contractor, nil, nil), а вызывающая сторона превращает это в отказ.
func (s *InvitationService) Authorize(ctx context.Context, authID, bidPackageID string) (*models.Contractor, *models.Invitation, error) {
	contractor, err := s.Repo.GetContractorByAuthID(ctx, authID)
	if err != nil {
		return nil, nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to resolve contractor")
	}
	if contractor == nil {
		return nil, nil, nil
	}

	invitation, err := s.Repo.GetInvitation(ctx, contractor.ID, bidPackageID)
	if err != nil {
		return nil, nil, models.NewErrorResponse(http.StatusInternalServerError, "failed to check invitation")
	}
	return contractor, invitation, nil
}
