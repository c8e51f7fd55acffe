package models

import "time"

type (
	NotificationType string // Тип уведомления в комнате пакета
	BidEventType     string // Тип события в истории предложений
)

const (
	BidSubmittedNotification NotificationType = "bid_submitted"
	BidUpdatedNotification   NotificationType = "bid_updated"

	SubmittedEvent BidEventType = "submitted"
	UpdatedEvent   BidEventType = "updated"
	WithdrawnEvent BidEventType = "withdrawn"
)

// Notification - элемент ленты недавних событий комнаты. Возраст (Age)
// вычисляется в момент чтения и не хранится.
type Notification struct {
	ID             string           `json:"id"`
	Type           NotificationType `json:"type"`
	Message        string           `json:"message"`
	ContractorName string           `json:"contractorName"`
	Price          float64          `json:"price"`
	CreatedAt      time.Time        `json:"createdAt"`
	Age            string           `json:"age,omitempty"`
}

// LeaderboardEntry - строка таблицы лидеров. Псевдоним никогда не
// раскрывает других подрядчиков.
type LeaderboardEntry struct {
	Rank            int       `json:"rank"`
	BidID           string    `json:"bidId"`
	ContractorAlias string    `json:"contractorAlias"`
	Price           float64   `json:"amount"`
	IsMine          bool      `json:"isMine"`
	SubmittedOn     time.Time `json:"submittedOn"`
}

// BidEvent - событие истории предложений пакета, восстановленное из
// записей реестра.
type BidEvent struct {
	Timestamp    time.Time    `json:"ts"`
	Type         BidEventType `json:"type"`
	BidID        string       `json:"bidId"`
	ContractorID string       `json:"contractorId"`
	Price        float64      `json:"amount"`
}
