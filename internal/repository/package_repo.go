package repository

import (
	"context"
	"errors"

	"github.com/senyabanana/bid-room-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PackageRepository - интерфейс для работы с пакетами, подрядчиками и приглашениями.
type PackageRepository interface {
	GetPackageByID(ctx context.Context, bidPackageID string) (*models.BidPackage, error)
	GetContractorByAuthID(ctx context.Context, authID string) (*models.Contractor, error)
	GetContractorByEmail(ctx context.Context, email string) (*models.Contractor, error)
	GetInvitation(ctx context.Context, contractorID, bidPackageID string) (*models.Invitation, error)
	GetInvitationByContractor(ctx context.Context, contractorID string) (*models.Invitation, error)
}

// PostgresPackageRepository - реализация PackageRepository для базы данных.
type PostgresPackageRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresPackageRepository создает новый экземпляр PostgresPackageRepository.
func NewPostgresPackageRepository(db *pgxpool.Pool) *PostgresPackageRepository {
	return &PostgresPackageRepository{DB: db}
}

// GetPackageByID возвращает пакет по его идентификатору. Отсутствие записи
// не считается ошибкой: возвращается (nil, nil).
func (r *PostgresPackageRepository) GetPackageByID(ctx context.Context, bidPackageID string) (*models.BidPackage, error) {
	var pkg models.BidPackage
	query := `SELECT id, code, name, description, submission_deadline, created_at
	          FROM bid_package WHERE id = $1`
	err := r.DB.QueryRow(ctx, query, bidPackageID).Scan(
		&pkg.ID,
		&pkg.Code,
		&pkg.Name,
		&pkg.Description,
		&pkg.Deadline,
		&pkg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// GetContractorByAuthID возвращает подрядчика по идентификатору из токена доступа.
func (r *PostgresPackageRepository) GetContractorByAuthID(ctx context.Context, authID string) (*models.Contractor, error) {
	var contractor models.Contractor
	query := `SELECT id, auth_id, name, email FROM contractor WHERE auth_id = $1`
	err := r.DB.QueryRow(ctx, query, authID).Scan(
		&contractor.ID,
		&contractor.AuthID,
		&contractor.Name,
		&contractor.Email,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contractor, nil
}

// GetContractorByEmail возвращает подрядчика по адресу почты.
func (r *PostgresPackageRepository) GetContractorByEmail(ctx context.Context, email string) (*models.Contractor, error) {
	var contractor models.Contractor
	query := `SELECT id, auth_id, name, email FROM contractor WHERE email = $1`
	err := r.DB.QueryRow(ctx, query, email).Scan(
		&contractor.ID,
		&contractor.AuthID,
		&contractor.Name,
		&contractor.Email,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contractor, nil
}

// GetInvitation возвращает приглашение для пары (подрядчик, пакет), если оно есть.
func (r *PostgresPackageRepository) GetInvitation(ctx context.Context, contractorID, bidPackageID string) (*models.Invitation, error) {
	var invitation models.Invitation
	query := `SELECT id, contractor_id, bid_package_id, sent_on
	          FROM invitation WHERE contractor_id = $1 AND bid_package_id = $2`
	err := r.DB.QueryRow(ctx, query, contractorID, bidPackageID).Scan(
		&invitation.ID,
		&invitation.ContractorID,
		&invitation.BidPackageID,
		&invitation.SentOn,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

// GetInvitationByContractor возвращает первое приглашение подрядчика.
func (r *PostgresPackageRepository) GetInvitationByContractor(ctx context.Context, contractorID string) (*models.Invitation, error) {
	var invitation models.Invitation
	query := `SELECT id, contractor_id, bid_package_id, sent_on
	          FROM invitation WHERE contractor_id = $1 ORDER BY sent_on LIMIT 1`
	err := r.DB.QueryRow(ctx, query, contractorID).Scan(
		&invitation.ID,
		&invitation.ContractorID,
		&invitation.BidPackageID,
		&invitation.SentOn,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}
