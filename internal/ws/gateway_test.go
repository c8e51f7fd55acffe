package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/senyabanana/bid-room-service/internal/auth"
	"github.com/senyabanana/bid-room-service/internal/models"
	"github.com/senyabanana/bid-room-service/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("gateway-test-secret")

// memStore - хранилище в памяти, реализующее оба интерфейса
// репозиториев для тестов шлюза.
type memStore struct {
	mu          sync.Mutex
	packages    map[string]*models.BidPackage
	contractors map[string]*models.Contractor
	invitations []models.Invitation
	bids        map[string]*models.Bid
}

func newMemStore() *memStore {
	return &memStore{
		packages:    make(map[string]*models.BidPackage),
		contractors: make(map[string]*models.Contractor),
		bids:        make(map[string]*models.Bid),
	}
}

func (s *memStore) addPackage(id string) {
	s.packages[id] = &models.BidPackage{ID: id, Code: "PKG-" + id, Name: "Package " + id, CreatedAt: time.Now()}
}

func (s *memStore) addContractor(authID, name string, invitedTo ...string) {
	c := &models.Contractor{ID: uuid.New().String(), AuthID: authID, Name: name, Email: authID + "@example.com"}
	s.contractors[authID] = c
	for _, pkgID := range invitedTo {
		s.invitations = append(s.invitations, models.Invitation{
			ID: uuid.New().String(), ContractorID: c.ID, BidPackageID: pkgID, SentOn: time.Now(),
		})
	}
}

func (s *memStore) GetPackageByID(_ context.Context, id string) (*models.BidPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packages[id], nil
}

func (s *memStore) GetContractorByAuthID(_ context.Context, authID string) (*models.Contractor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contractors[authID], nil
}

func (s *memStore) GetContractorByEmail(_ context.Context, email string) (*models.Contractor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contractors {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetInvitation(_ context.Context, contractorID, bidPackageID string) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.invitations {
		if s.invitations[i].ContractorID == contractorID && s.invitations[i].BidPackageID == bidPackageID {
			return &s.invitations[i], nil
		}
	}
	return nil, nil
}

func (s *memStore) GetInvitationByContractor(_ context.Context, contractorID string) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.invitations {
		if s.invitations[i].ContractorID == contractorID {
			return &s.invitations[i], nil
		}
	}
	return nil, nil
}

func (s *memStore) GetBidByID(_ context.Context, bidID string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bid, ok := s.bids[bidID]; ok {
		copied := *bid
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) GetActiveBid(_ context.Context, contractorID, bidPackageID string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bid := range s.bids {
		if bid.ContractorID == contractorID && bid.BidPackageID == bidPackageID && bid.Status == models.ActiveBid {
			copied := *bid
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreateBid(_ context.Context, contractorID, bidPackageID string, price float64, label string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	bid := &models.Bid{
		ID: uuid.New().String(), ContractorID: contractorID, BidPackageID: bidPackageID,
		Price: price, Label: label, Status: models.ActiveBid, SubmittedOn: now, UpdatedOn: now,
	}
	s.bids[bid.ID] = bid
	copied := *bid
	return &copied, nil
}

func (s *memStore) UpdateBid(_ context.Context, bidID string, price *float64, label *string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bid, ok := s.bids[bidID]
	if !ok {
		return nil, nil
	}
	if price != nil {
		bid.Price = *price
	}
	if label != nil {
		bid.Label = *label
	}
	bid.UpdatedOn = time.Now()
	copied := *bid
	return &copied, nil
}

func (s *memStore) WithdrawBid(_ context.Context, bidID string) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bid, ok := s.bids[bidID]
	if !ok {
		return nil, nil
	}
	bid.Status = models.WithdrawnBid
	bid.UpdatedOn = time.Now()
	copied := *bid
	return &copied, nil
}

func (s *memStore) GetPackageBids(_ context.Context, bidPackageID string, _, _ int, _ []string) ([]models.Bid, error) {
	return s.GetAllPackageBids(nil, bidPackageID)
}

func (s *memStore) GetActivePackageBids(_ context.Context, bidPackageID string) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Bid
	for _, bid := range s.bids {
		if bid.BidPackageID == bidPackageID && bid.Status == models.ActiveBid {
			result = append(result, *bid)
		}
	}
	return result, nil
}

func (s *memStore) GetAllPackageBids(_ context.Context, bidPackageID string) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Bid
	for _, bid := range s.bids {
		if bid.BidPackageID == bidPackageID {
			result = append(result, *bid)
		}
	}
	return result, nil
}

func (s *memStore) GetContractorBids(_ context.Context, contractorID string, _, _ int) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Bid
	for _, bid := range s.bids {
		if bid.ContractorID == contractorID {
			result = append(result, *bid)
		}
	}
	return result, nil
}

// testEvent повторяет Response с сырой полезной нагрузкой для разбора в
// тестах.
type testEvent struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, store *memStore) (*Gateway, *httptest.Server) {
	t.Helper()
	gate := services.NewInvitationService(store)
	bids := services.NewBidService(store, store, gate)
	logger := log.New(io.Discard, "", 0)
	gateway := NewGateway(bids, store, logger, testSecret, time.Second)

	srv := httptest.NewServer(http.HandlerFunc(gateway.ServeWS))
	t.Cleanup(srv.Close)
	return gateway, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType, ref string, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Type: msgType, Ref: ref, Data: payload}))
}

// awaitEvent читает сообщения, пока не встретит нужный тип.
func awaitEvent(t *testing.T, conn *websocket.Conn, eventType string) testEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for i := 0; i < 10; i++ {
		var ev testEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == eventType {
			return ev
		}
	}
	t.Fatalf("event %q never arrived", eventType)
	return testEvent{}
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var ev testEvent
	err := conn.ReadJSON(&ev)
	require.Error(t, err, "unexpected event %q", ev.Type)
}

func TestGateway_RejectsBadToken(t *testing.T) {
	_, srv := newTestServer(t, newMemStore())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?access_token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_JoinRoomAndViewerCount(t *testing.T) {
	store := newMemStore()
	store.addPackage("pkg-1")
	store.addContractor("auth-a", "Alpha Build", "pkg-1")
	_, srv := newTestServer(t, store)

	token, err := auth.GenerateToken("auth-a", "auth-a@example.com", testSecret, time.Minute)
	require.NoError(t, err)
	conn := dial(t, srv, token)

	send(t, conn, MsgJoinRoom, "r1", RoomRequest{BidPackageID: "pkg-1"})

	joined := awaitEvent(t, conn, EventRoomJoined)
	assert.True(t, joined.Success)
	assert.Equal(t, "r1", joined.Ref)

	var info RoomInfo
	require.NoError(t, json.Unmarshal(joined.Data, &info))
	assert.Equal(t, "bidPackage:pkg-1", info.RoomName)

	count := awaitEvent(t, conn, EventViewerCount)
	var viewers ViewerCount
	require.NoError(t, json.Unmarshal(count.Data, &viewers))
	assert.Equal(t, 1, viewers.Viewers)

	// несуществующий пакет
	send(t, conn, MsgJoinRoom, "r2", RoomRequest{BidPackageID: "missing"})
	ev := awaitEvent(t, conn, MsgJoinRoom)
	assert.False(t, ev.Success)
	assert.Equal(t, "bid package not found", ev.Message)
}

func TestGateway_MustJoinBeforeBidding(t *testing.T) {
	store := newMemStore()
	store.addPackage("pkg-1")
	store.addContractor("auth-a", "Alpha Build", "pkg-1")
	_, srv := newTestServer(t, store)

	token, err := auth.GenerateToken("auth-a", "auth-a@example.com", testSecret, time.Minute)
	require.NoError(t, err)
	conn := dial(t, srv, token)

	send(t, conn, MsgSubmitOrUpdateBid, "r1", models.SubmitBidRequest{BidPackageID: "pkg-1", Price: 100})

	ev := awaitEvent(t, conn, MsgSubmitOrUpdateBid)
	assert.False(t, ev.Success)
	assert.Equal(t, "join the package room before bidding", ev.Message)
}

func TestGateway_SubmitBroadcastsToRoom(t *testing.T) {
	store := newMemStore()
	store.addPackage("pkg-1")
	store.addContractor("auth-a", "Alpha Build", "pkg-1")
	store.addContractor("auth-b", "Beta Corp", "pkg-1")
	_, srv := newTestServer(t, store)

	tokenA, err := auth.GenerateToken("auth-a", "auth-a@example.com", testSecret, time.Minute)
	require.NoError(t, err)
	tokenB, err := auth.GenerateToken("auth-b", "auth-b@example.com", testSecret, time.Minute)
	require.NoError(t, err)

	watcher := dial(t, srv, tokenA)
	send(t, watcher, MsgJoinRoom, "w1", RoomRequest{BidPackageID: "pkg-1"})
	awaitEvent(t, watcher, EventRoomJoined)

	bidder := dial(t, srv, tokenB)
	send(t, bidder, MsgJoinRoom, "b1", RoomRequest{BidPackageID: "pkg-1"})
	awaitEvent(t, bidder, EventRoomJoined)

	// второй участник поднимает счетчик у первого
	for {
		count := awaitEvent(t, watcher, EventViewerCount)
		var viewers ViewerCount
		require.NoError(t, json.Unmarshal(count.Data, &viewers))
		if viewers.Viewers == 2 {
			break
		}
	}

	send(t, bidder, MsgSubmitOrUpdateBid, "b2", models.SubmitBidRequest{BidPackageID: "pkg-1", Price: 150})

	reply := awaitEvent(t, bidder, MsgSubmitOrUpdateBid)
	assert.True(t, reply.Success)

	// сырое событие видят все, включая действующего
	raw := awaitEvent(t, watcher, EventBidNew)
	var broadcast BidBroadcast
	require.NoError(t, json.Unmarshal(raw.Data, &broadcast))
	assert.Equal(t, "Beta Corp", broadcast.By)
	require.NotNil(t, broadcast.Amount)
	assert.Equal(t, 150.0, *broadcast.Amount)
	awaitEvent(t, bidder, EventBidNew)

	// уведомление получают все, кроме действующего
	notification := awaitEvent(t, watcher, EventNotificationNew)
	var n models.Notification
	require.NoError(t, json.Unmarshal(notification.Data, &n))
	assert.Equal(t, models.BidSubmittedNotification, n.Type)
	assert.Equal(t, "Beta Corp submitted a bid", n.Message)
	expectSilence(t, bidder)
}

func TestGateway_NotificationsRequireMembership(t *testing.T) {
	store := newMemStore()
	store.addPackage("pkg-1")
	store.addContractor("auth-a", "Alpha Build", "pkg-1")
	_, srv := newTestServer(t, store)

	token, err := auth.GenerateToken("auth-a", "auth-a@example.com", testSecret, time.Minute)
	require.NoError(t, err)
	conn := dial(t, srv, token)

	send(t, conn, MsgGetNotifications, "r1", RoomRequest{BidPackageID: "pkg-1"})
	ev := awaitEvent(t, conn, MsgGetNotifications)
	assert.False(t, ev.Success)

	// счетчик зрителей членства не требует
	send(t, conn, MsgRequestViewerCount, "r2", RoomRequest{BidPackageID: "pkg-1"})
	ev = awaitEvent(t, conn, MsgRequestViewerCount)
	assert.True(t, ev.Success)
}

func TestGateway_TokenRevalidatedPerMessage(t *testing.T) {
	store := newMemStore()
	store.addPackage("pkg-1")
	store.addContractor("auth-a", "Alpha Build", "pkg-1")
	_, srv := newTestServer(t, store)

	token, err := auth.GenerateToken("auth-a", "auth-a@example.com", testSecret, time.Second)
	require.NoError(t, err)
	conn := dial(t, srv, token)

	// токен протухает посреди сессии
	time.Sleep(1200 * time.Millisecond)

	send(t, conn, MsgRequestViewerCount, "r1", RoomRequest{BidPackageID: "pkg-1"})
	ev := awaitEvent(t, conn, EventAuthInvalid)
	assert.False(t, ev.Success)

	// после отказа шлюз закрывает соединение
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, readErr := conn.ReadMessage()
	require.Error(t, readErr)
}

func TestGateway_UpdateBidScopedToBidsOwnRoom(t *testing.T) {
	store := newMemStore()
	store.addPackage("pkg-1")
	store.addPackage("pkg-2")
	store.addContractor("auth-a", "Alpha Build", "pkg-1")
	_, srv := newTestServer(t, store)

	token, err := auth.GenerateToken("auth-a", "auth-a@example.com", testSecret, time.Minute)
	require.NoError(t, err)
	conn := dial(t, srv, token)

	send(t, conn, MsgJoinRoom, "r1", RoomRequest{BidPackageID: "pkg-1"})
	awaitEvent(t, conn, EventRoomJoined)

	send(t, conn, MsgSubmitOrUpdateBid, "r2", models.SubmitBidRequest{BidPackageID: "pkg-1", Price: 100})
	reply := awaitEvent(t, conn, MsgSubmitOrUpdateBid)
	require.True(t, reply.Success)
	var bid models.Bid
	require.NoError(t, json.Unmarshal(reply.Data, &bid))

	// участник уходит из комнаты своего предложения в другую
	send(t, conn, MsgLeaveRoom, "r3", RoomRequest{BidPackageID: "pkg-1"})
	awaitEvent(t, conn, EventRoomLeft)
	send(t, conn, MsgJoinRoom, "r4", RoomRequest{BidPackageID: "pkg-2"})
	awaitEvent(t, conn, EventRoomJoined)

	price := 55.0

	// чужой пакет в сообщении не перенаправляет мутацию
	send(t, conn, MsgUpdateBid, "r5", UpdateBidMessage{BidID: bid.ID, BidPackageID: "pkg-2", Price: &price})
	ev := awaitEvent(t, conn, MsgUpdateBid)
	assert.False(t, ev.Success)
	assert.Equal(t, "bid does not belong to this package", ev.Message)

	// без членства в комнате пакета записи правка не проходит
	send(t, conn, MsgUpdateBid, "r6", UpdateBidMessage{BidID: bid.ID, BidPackageID: "pkg-1", Price: &price})
	ev = awaitEvent(t, conn, MsgUpdateBid)
	assert.False(t, ev.Success)
	assert.Equal(t, "join the package room before bidding", ev.Message)

	stored, err := store.GetBidByID(context.Background(), bid.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.Price)

	// после возвращения в комнату пакет выводится из самой записи
	send(t, conn, MsgJoinRoom, "r7", RoomRequest{BidPackageID: "pkg-1"})
	awaitEvent(t, conn, EventRoomJoined)

	send(t, conn, MsgUpdateBid, "r8", UpdateBidMessage{BidID: bid.ID, Price: &price})
	ev = awaitEvent(t, conn, MsgUpdateBid)
	assert.True(t, ev.Success)

	stored, err = store.GetBidByID(context.Background(), bid.ID)
	require.NoError(t, err)
	assert.Equal(t, 55.0, stored.Price)
}

func TestGateway_WithdrawNotificationWording(t *testing.T) {
	store := newMemStore()
	store.addPackage("pkg-1")
	store.addContractor("auth-a", "Alpha Build", "pkg-1")
	store.addContractor("auth-b", "Beta Corp", "pkg-1")
	gateway, srv := newTestServer(t, store)

	tokenB, err := auth.GenerateToken("auth-b", "auth-b@example.com", testSecret, time.Minute)
	require.NoError(t, err)
	watcher := dial(t, srv, tokenB)
	send(t, watcher, MsgJoinRoom, "r1", RoomRequest{BidPackageID: "pkg-1"})
	awaitEvent(t, watcher, EventRoomJoined)

	// отзыв приходит через HTTP-поверхность тем же публикатором
	withdrawn := &models.Bid{
		ID: uuid.New().String(), BidPackageID: "pkg-1", Price: 100,
		Status: models.WithdrawnBid,
	}
	gateway.PublishMutation(context.Background(), "pkg-1", withdrawn, false, "auth-a", []string{"status"})

	ev := awaitEvent(t, watcher, EventNotificationNew)
	var n models.Notification
	require.NoError(t, json.Unmarshal(ev.Data, &n))
	assert.Equal(t, models.BidUpdatedNotification, n.Type)
	assert.Equal(t, "Alpha Build withdrew their bid", n.Message)
}

func TestGateway_LogoutRacesDisconnect(t *testing.T) {
	store := newMemStore()
	store.addPackage("pkg-1")
	store.addContractor("auth-a", "Alpha Build", "pkg-1")
	gateway, srv := newTestServer(t, store)

	token, err := auth.GenerateToken("auth-a", "auth-a@example.com", testSecret, time.Minute)
	require.NoError(t, err)

	// обрыв вкладки одновременно с выходом не должен ронять процесс
	for i := 0; i < 25; i++ {
		first := dial(t, srv, token)
		second := dial(t, srv, token)

		done := make(chan struct{})
		go func() {
			gateway.Logout("auth-a")
			close(done)
		}()
		first.Close()
		second.Close()
		<-done
	}
}

func TestGateway_LogoutClosesAllSessions(t *testing.T) {
	store := newMemStore()
	store.addPackage("pkg-1")
	store.addContractor("auth-a", "Alpha Build", "pkg-1")
	gateway, srv := newTestServer(t, store)

	token, err := auth.GenerateToken("auth-a", "auth-a@example.com", testSecret, time.Minute)
	require.NoError(t, err)

	first := dial(t, srv, token)
	second := dial(t, srv, token)

	require.Eventually(t, func() bool {
		gateway.clientsMu.Lock()
		defer gateway.clientsMu.Unlock()
		return len(gateway.clients["auth-a"]) == 2
	}, time.Second, 10*time.Millisecond)

	gateway.Logout("auth-a")

	for _, conn := range []*websocket.Conn{first, second} {
		ev := awaitEvent(t, conn, EventAuthLogout)
		assert.False(t, ev.Success)

		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, readErr := conn.ReadMessage()
		require.Error(t, readErr)
	}
}
