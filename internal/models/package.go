package models

import "time"

// BidPackage представляет модель пакета, по которому собираются предложения.
// Дедлайн может отсутствовать, тогда подача не ограничена по времени.
type BidPackage struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"submissionDeadline"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Contractor представляет модель подрядчика.
type Contractor struct {
	ID     string `json:"id"`
	AuthID string `json:"-"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Invitation - приглашение подрядчика к участию в пакете. Наличие
// приглашения обязательно для любой операции с предложениями пакета.
type Invitation struct {
	ID           string    `json:"id"`
	ContractorID string    `json:"contractorId"`
	BidPackageID string    `json:"bidPackageId"`
	SentOn       time.Time `json:"sentOn"`
}

// PackageOverview - пакет подрядчика вместе с состоянием его участия.
type PackageOverview struct {
	BidPackage
	HasBid bool `json:"hasBid"`
	MyBid  *Bid `json:"myBid"`
	CanBid bool `json:"canBid"`
}
