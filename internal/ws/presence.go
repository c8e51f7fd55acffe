package ws

import "sync"

// PresenceTracker ведет по каждой комнате пакета множество подключенных
// личностей. Личность считается один раз независимо от числа ее
// соединений (вкладок). Состояние живет только в памяти процесса и
// после рестарта отстраивается заново по живым соединениям.
type PresenceTracker struct {
	mu    sync.Mutex
	rooms map[string]map[string]map[string]struct{} // пакет -> личность -> соединения
}

// NewPresenceTracker создает пустой трекер.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{rooms: make(map[string]map[string]map[string]struct{})}
}

// Join регистрирует соединение личности в комнате пакета.
func (t *PresenceTracker) Join(bidPackageID, authID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[bidPackageID]
	if !ok {
		room = make(map[string]map[string]struct{})
		t.rooms[bidPackageID] = room
	}
	conns, ok := room[authID]
	if !ok {
		conns = make(map[string]struct{})
		room[authID] = conns
	}
	conns[connID] = struct{}{}
}

// Leave убирает соединение из комнаты. Личность покидает комнату только
// когда уходит ее последнее соединение.
func (t *PresenceTracker) Leave(bidPackageID, authID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaveLocked(bidPackageID, authID, connID)
}

func (t *PresenceTracker) leaveLocked(bidPackageID, authID, connID string) {
	room, ok := t.rooms[bidPackageID]
	if !ok {
		return
	}
	conns, ok := room[authID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(room, authID)
	}
	if len(room) == 0 {
		delete(t.rooms, bidPackageID)
	}
}

// Disconnect обрабатывает обрыв транспортной сессии: соединение
// убирается из всех комнат, где оно было. Возвращается список
// затронутых комнат, чтобы вызывающая сторона разослала по одному
// обновлению счетчика на комнату.
func (t *PresenceTracker) Disconnect(authID, connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var affected []string
	for bidPackageID, room := range t.rooms {
		if conns, ok := room[authID]; ok {
			if _, ok := conns[connID]; ok {
				affected = append(affected, bidPackageID)
			}
		}
	}
	for _, bidPackageID := range affected {
		t.leaveLocked(bidPackageID, authID, connID)
	}
	return affected
}

// Count возвращает число различных личностей в комнате. Значение всегда
// пересчитывается по множеству живых соединений, локальных счетчиков нет.
func (t *PresenceTracker) Count(bidPackageID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms[bidPackageID])
}
