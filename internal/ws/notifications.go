package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/senyabanana/bid-room-service/internal/models"
)

// notificationLimit - сколько последних уведомлений хранится на комнату.
const notificationLimit = 50

// NotificationBus - ограниченный буфер недавних событий по каждому
// пакету. Это кеш, а не журнал: буфер пустой комнаты можно выбросить,
// вся информация восстановима из реестра.
type NotificationBus struct {
	mu      sync.Mutex
	buffers map[string][]models.Notification
}

// NewNotificationBus создает пустую шину.
func NewNotificationBus() *NotificationBus {
	return &NotificationBus{buffers: make(map[string][]models.Notification)}
}

// Append добавляет уведомление в начало буфера комнаты. При переполнении
// самые старые записи молча отбрасываются.
func (b *NotificationBus) Append(bidPackageID string, n models.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffer := append([]models.Notification{n}, b.buffers[bidPackageID]...)
	if len(buffer) > notificationLimit {
		buffer = buffer[:notificationLimit]
	}
	b.buffers[bidPackageID] = buffer
}

// List возвращает уведомления комнаты, свежие первыми. Возраст каждой
// записи вычисляется от ее абсолютной метки времени в момент чтения.
func (b *NotificationBus) List(bidPackageID string, now time.Time) []models.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffer := b.buffers[bidPackageID]
	result := make([]models.Notification, len(buffer))
	for i, n := range buffer {
		n.Age = relativeAge(n.CreatedAt, now)
		result[i] = n
	}
	return result
}

// Sweep выбрасывает буфер комнаты. Вызывается, когда в комнате не
// остается зрителей.
func (b *NotificationBus) Sweep(bidPackageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, bidPackageID)
}

// relativeAge переводит абсолютное время в человеческий интервал.
func relativeAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
