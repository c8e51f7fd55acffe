package models

import "time"

type BidStatus string // Статус предложения цены

const (
	ActiveBid    BidStatus = "Active"    // Предложение актуально
	WithdrawnBid BidStatus = "Withdrawn" // Предложение отозвано
)

// Bid представляет модель ценового предложения подрядчика по пакету.
// Для пары (подрядчик, пакет) может существовать не более одного
// предложения со статусом Active.
type Bid struct {
	ID           string    `json:"id"`
	ContractorID string    `json:"contractorId"`
	BidPackageID string    `json:"bidPackageId"`
	Price        float64   `json:"price"`
	Label        string    `json:"label"`
	Status       BidStatus `json:"status"`
	SubmittedOn  time.Time `json:"submittedOn"`
	UpdatedOn    time.Time `json:"updatedOn"`
}

// SubmitBidRequest представляет структуру запроса на подачу предложения.
type SubmitBidRequest struct {
	BidPackageID string  `json:"bidPackageId"`
	Price        float64 `json:"price"`
	Label        string  `json:"label"`
}

// UpdateBidRequest представляет структуру запроса на изменение предложения.
// Нулевые указатели означают, что поле не меняется.
type UpdateBidRequest struct {
	Price *float64 `json:"price"`
	Label *string  `json:"label"`
}

// BidStatistics - агрегаты по активным предложениям пакета.
type BidStatistics struct {
	TotalBids    int      `json:"totalBids"`
	AveragePrice float64  `json:"averagePrice"`
	LowestPrice  *float64 `json:"lowestPrice"`
	HighestPrice *float64 `json:"highestPrice"`
}
