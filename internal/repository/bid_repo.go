package repository

import (
	"context"
	"errors"
	"time"

	"github.com/senyabanana/bid-room-service/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// BidRepository - интерфейс для работы с предложениями.
type BidRepository interface {
	GetBidByID(ctx context.Context, bidID string) (*models.Bid, error)
	GetActiveBid(ctx context.Context, contractorID, bidPackageID string) (*models.Bid, error)
	CreateBid(ctx context.Context, contractorID, bidPackageID string, price float64, label string) (*models.Bid, error)
	UpdateBid(ctx context.Context, bidID string, price *float64, label *string) (*models.Bid, error)
	WithdrawBid(ctx context.Context, bidID string) (*models.Bid, error)
	GetPackageBids(ctx context.Context, bidPackageID string, limit, offset int, statuses []string) ([]models.Bid, error)
	GetActivePackageBids(ctx context.Context, bidPackageID string) ([]models.Bid, error)
	GetAllPackageBids(ctx context.Context, bidPackageID string) ([]models.Bid, error)
	GetContractorBids(ctx context.Context, contractorID string, limit, offset int) ([]models.Bid, error)
}

// PostgresBidRepository - реализация BidRepository для базы данных.
type PostgresBidRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresBidRepository создает новый экземпляр PostgresBidRepository.
func NewPostgresBidRepository(db *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{DB: db}
}

const bidColumns = `id, contractor_id, bid_package_id, price, label, status, submitted_on, updated_on`

func scanBid(row pgx.Row) (*models.Bid, error) {
	var bid models.Bid
	err := row.Scan(
		&bid.ID,
		&bid.ContractorID,
		&bid.BidPackageID,
		&bid.Price,
		&bid.Label,
		&bid.Status,
		&bid.SubmittedOn,
		&bid.UpdatedOn,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// GetBidByID возвращает предложение по идентификатору, (nil, nil) если его нет.
func (r *PostgresBidRepository) GetBidByID(ctx context.Context, bidID string) (*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid WHERE id = $1`
	return scanBid(r.DB.QueryRow(ctx, query, bidID))
}

// GetActiveBid возвращает активное предложение пары (подрядчик, пакет).
// По построению такое предложение не более одного.
func (r *PostgresBidRepository) GetActiveBid(ctx context.Context, contractorID, bidPackageID string) (*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid
	          WHERE contractor_id = $1 AND bid_package_id = $2 AND status = $3`
	return scanBid(r.DB.QueryRow(ctx, query, contractorID, bidPackageID, models.ActiveBid))
}

// CreateBid создает новое активное предложение.
func (r *PostgresBidRepository) CreateBid(ctx context.Context, contractorID, bidPackageID string, price float64, label string) (*models.Bid, error) {
	now := time.Now().UTC()
	newBid := models.Bid{
		ID:           uuid.New().String(),
		ContractorID: contractorID,
		BidPackageID: bidPackageID,
		Price:        price,
		Label:        label,
		Status:       models.ActiveBid,
		SubmittedOn:  now,
		UpdatedOn:    now,
	}
	insertQuery := `INSERT INTO bid (id, contractor_id, bid_package_id, price, label, status, submitted_on, updated_on)
	                VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.Exec(
		ctx,
		insertQuery,
		newBid.ID,
		newBid.ContractorID,
		newBid.BidPackageID,
		newBid.Price,
		newBid.Label,
		newBid.Status,
		newBid.SubmittedOn,
		newBid.UpdatedOn)
	if err != nil {
		return nil, err
	}
	return &newBid, nil
}

// UpdateBid меняет цену и подпись предложения и сдвигает updated_on.
// Нулевые указатели оставляют поле без изменений.
func (r *PostgresBidRepository) UpdateBid(ctx context.Context, bidID string, price *float64, label *string) (*models.Bid, error) {
	query := `UPDATE bid
	          SET price = COALESCE($2, price), label = COALESCE($3, label), updated_on = $4
	          WHERE id = $1
	          RETURNING ` + bidColumns
	return scanBid(r.DB.QueryRow(ctx, query, bidID, price, label, time.Now().UTC()))
}

// WithdrawBid переводит предложение в статус Withdrawn, не удаляя запись.
func (r *PostgresBidRepository) WithdrawBid(ctx context.Context, bidID string) (*models.Bid, error) {
	query := `UPDATE bid SET status = $2, updated_on = $3 WHERE id = $1 RETURNING ` + bidColumns
	return scanBid(r.DB.QueryRow(ctx, query, bidID, models.WithdrawnBid, time.Now().UTC()))
}

// GetPackageBids возвращает страницу предложений пакета, свежие первыми.
func (r *PostgresBidRepository) GetPackageBids(ctx context.Context, bidPackageID string, limit, offset int, statuses []string) ([]models.Bid, error) {
	var rows pgx.Rows
	var err error
	if len(statuses) > 0 {
		query := `SELECT ` + bidColumns + ` FROM bid
		          WHERE bid_package_id = $1 AND status = ANY($2)
		          ORDER BY submitted_on DESC LIMIT $3 OFFSET $4`
		rows, err = r.DB.Query(ctx, query, bidPackageID, pq.Array(statuses), limit, offset)
	} else {
		query := `SELECT ` + bidColumns + ` FROM bid
		          WHERE bid_package_id = $1
		          ORDER BY submitted_on DESC LIMIT $2 OFFSET $3`
		rows, err = r.DB.Query(ctx, query, bidPackageID, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBids(rows)
}

// GetActivePackageBids возвращает все активные предложения пакета.
func (r *PostgresBidRepository) GetActivePackageBids(ctx context.Context, bidPackageID string) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid
	          WHERE bid_package_id = $1 AND status = $2
	          ORDER BY submitted_on`
	rows, err := r.DB.Query(ctx, query, bidPackageID, models.ActiveBid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBids(rows)
}

// GetAllPackageBids возвращает все предложения пакета, включая отозванные,
// в порядке подачи. Используется восстановлением истории.
func (r *PostgresBidRepository) GetAllPackageBids(ctx context.Context, bidPackageID string) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid
	          WHERE bid_package_id = $1
	          ORDER BY submitted_on`
	rows, err := r.DB.Query(ctx, query, bidPackageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBids(rows)
}

// GetContractorBids возвращает страницу предложений подрядчика, свежие первыми.
func (r *PostgresBidRepository) GetContractorBids(ctx context.Context, contractorID string, limit, offset int) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid
	          WHERE contractor_id = $1
	          ORDER BY submitted_on DESC LIMIT $2 OFFSET $3`
	rows, err := r.DB.Query(ctx, query, contractorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBids(rows)
}

func collectBids(rows pgx.Rows) ([]models.Bid, error) {
	var bids []models.Bid
	for rows.Next() {
		var bid models.Bid
		if err := rows.Scan(
			&bid.ID,
			&bid.ContractorID,
			&bid.BidPackageID,
			&bid.Price,
			&bid.Label,
			&bid.Status,
			&bid.SubmittedOn,
			&bid.UpdatedOn); err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}
