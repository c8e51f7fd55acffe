package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/senyabanana/bid-room-service/internal/auth"
	"github.com/senyabanana/bid-room-service/internal/models"
	"github.com/senyabanana/bid-room-service/internal/repository"
	"github.com/senyabanana/bid-room-service/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Gateway привязывает аутентифицированные соединения к комнатам пакетов
// и маршрутизирует их сообщения в реестр, трекер присутствия и шину
// уведомлений. Токен проверяется не только на подключении, но и перед
// каждым привилегированным сообщением: токен может протухнуть посреди
// сессии, а скомпрометированный клиент может слать запросы не
// переподключаясь.
type Gateway struct {
	Bids          *services.BidService
	Packages      repository.PackageRepository
	Presence      *PresenceTracker
	Notifications *NotificationBus
	Hub           *Hub
	Logger        *log.Logger
	Secret        []byte
	Timeout       time.Duration

	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[string]map[*Client]struct{} // живые соединения по личности
}

// NewGateway создает новый экземпляр Gateway.
func NewGateway(bids *services.BidService, packages repository.PackageRepository, logger *log.Logger, secret []byte, timeout time.Duration) *Gateway {
	return &Gateway{
		Bids:          bids,
		Packages:      packages,
		Presence:      NewPresenceTracker(),
		Notifications: NewNotificationBus(),
		Hub:           NewHub(),
		Logger:        logger,
		Secret:        secret,
		Timeout:       timeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]map[*Client]struct{}),
	}
}

// ServeWS обрабатывает запрос на подключение. Токен берется из
// query-параметра access_token или одноименного заголовка.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("access_token")
	if token == "" {
		token = r.Header.Get("access_token")
	}

	identity, err := auth.VerifyToken(token, g.Secret)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.Logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		connID: uuid.New().String(),
		token:  token,
		authID: identity.ContractorAuthID,
		email:  identity.Email,
		rooms:  make(map[string]struct{}),
	}

	g.register(client)
	g.Logger.Printf("client connected: %s (%s)", client.connID, client.email)

	go client.writePump()
	g.readPump(client)
}

func (g *Gateway) register(client *Client) {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	conns, ok := g.clients[client.authID]
	if !ok {
		conns = make(map[*Client]struct{})
		g.clients[client.authID] = conns
	}
	conns[client] = struct{}{}
}

func (g *Gateway) unregisterLocked(client *Client) {
	conns, ok := g.clients[client.authID]
	if !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(g.clients, client.authID)
	}
}

// Logout принудительно завершает все живые соединения личности:
// каждое получает auth:logout и закрывается. Вызывается HTTP-выходом,
// чтобы выход на одном устройстве гасил сессии на остальных. Отправка
// идет под clientsMu: очередь соединения закрывается под тем же
// мьютексом после снятия с учета, поэтому запись в закрытую очередь
// невозможна.
func (g *Gateway) Logout(authID string) {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	for client := range g.clients[authID] {
		client.Send(Response{Type: EventAuthLogout, Success: false, Message: "logged out"})
		client.forceClose()
	}
}

// readPump читает сообщения соединения и обрабатывает их по одному до
// конца, как того требует модель одной логической полосы обработки.
func (g *Gateway) readPump(client *Client) {
	defer g.disconnect(client)

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			client.Send(Response{Type: env.Type, Success: false, Message: "malformed message"})
			continue
		}

		if !g.dispatch(client, env) {
			return
		}
	}
}

// dispatch обрабатывает одно сообщение. Возвращает false, когда
// соединение должно быть закрыто (невалидный токен).
func (g *Gateway) dispatch(client *Client, env Envelope) bool {
	// Повторная проверка токена на каждом сообщении, не только при
	// подключении.
	if _, err := auth.VerifyToken(client.token, g.Secret); err != nil {
		client.Send(Response{
			Type:    EventAuthInvalid,
			Success: false,
			Message: "session expired, please login again",
		})
		return false
	}

	switch env.Type {
	case MsgJoinRoom:
		g.handleJoinRoom(client, env)
	case MsgLeaveRoom:
		g.handleLeaveRoom(client, env)
	case MsgSubmitOrUpdateBid:
		g.handleSubmitOrUpdate(client, env)
	case MsgUpdateBid:
		g.handleUpdateBid(client, env)
	case MsgGetNotifications:
		g.handleGetNotifications(client, env)
	case MsgRequestViewerCount:
		g.handleViewerCount(client, env)
	default:
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "unknown message type"})
	}
	return true
}

func roomName(bidPackageID string) string {
	return "bidPackage:" + bidPackageID
}

func (g *Gateway) handleJoinRoom(client *Client, env Envelope) {
	var req RoomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || req.BidPackageID == "" {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "bidPackageId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	pkg, err := g.Packages.GetPackageByID(ctx, req.BidPackageID)
	if err != nil {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "failed to load bid package"})
		return
	}
	if pkg == nil {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "bid package not found"})
		return
	}

	room := roomName(req.BidPackageID)
	client.rooms[req.BidPackageID] = struct{}{}
	g.Hub.Join(room, client)
	g.Presence.Join(req.BidPackageID, client.authID, client.connID)

	client.Send(Response{
		Type: EventRoomJoined, Ref: env.Ref, Success: true,
		Data: RoomInfo{BidPackageID: req.BidPackageID, RoomName: room},
	})
	g.broadcastViewerCount(req.BidPackageID)
}

func (g *Gateway) handleLeaveRoom(client *Client, env Envelope) {
	var req RoomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || req.BidPackageID == "" {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "bidPackageId is required"})
		return
	}

	room := roomName(req.BidPackageID)
	delete(client.rooms, req.BidPackageID)
	g.Hub.Leave(room, client)
	g.Presence.Leave(req.BidPackageID, client.authID, client.connID)

	client.Send(Response{
		Type: EventRoomLeft, Ref: env.Ref, Success: true,
		Data: RoomInfo{BidPackageID: req.BidPackageID, RoomName: room},
	})
	g.broadcastViewerCount(req.BidPackageID)

	if g.Presence.Count(req.BidPackageID) == 0 {
		g.Notifications.Sweep(req.BidPackageID)
	}
}

func (g *Gateway) handleSubmitOrUpdate(client *Client, env Envelope) {
	var req models.SubmitBidRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "malformed message"})
		return
	}

	if !client.member(req.BidPackageID) {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "join the package room before bidding"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	bid, created, err := g.Bids.SubmitOrUpdate(ctx, client.authID, req)
	if err != nil {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: errorMessage(err)})
		return
	}

	client.Send(Response{Type: env.Type, Ref: env.Ref, Success: true, Data: bid})
	g.publishMutation(req.BidPackageID, bid, created, g.contractorName(ctx, client), nil, client)
}

func (g *Gateway) handleUpdateBid(client *Client, env Envelope) {
	var req UpdateBidMessage
	if err := json.Unmarshal(env.Data, &req); err != nil {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "malformed message"})
		return
	}
	if req.BidID == "" {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "bidId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	// Комната определяется по пакету самой записи, а не по значению из
	// сообщения: иначе членство проверялось бы в одной комнате, а
	// мутация и рассылка уходили бы в другую.
	existing, err := g.Bids.Repo.GetBidByID(ctx, req.BidID)
	if err != nil {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "failed to load bid"})
		return
	}
	if existing == nil {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "bid not found"})
		return
	}
	if req.BidPackageID != "" && req.BidPackageID != existing.BidPackageID {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "bid does not belong to this package"})
		return
	}

	if !client.member(existing.BidPackageID) {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "join the package room before bidding"})
		return
	}

	bid, err := g.Bids.UpdateBid(ctx, client.authID, req.BidID, models.UpdateBidRequest{Price: req.Price, Label: req.Label})
	if err != nil {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: errorMessage(err)})
		return
	}

	client.Send(Response{Type: env.Type, Ref: env.Ref, Success: true, Data: bid})

	var fieldsChanged []string
	if req.Price != nil {
		fieldsChanged = append(fieldsChanged, "price")
	}
	if req.Label != nil {
		fieldsChanged = append(fieldsChanged, "label")
	}
	g.publishMutation(existing.BidPackageID, bid, false, g.contractorName(ctx, client), fieldsChanged, client)
}

func (g *Gateway) handleGetNotifications(client *Client, env Envelope) {
	var req RoomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || req.BidPackageID == "" {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "bidPackageId is required"})
		return
	}

	if !client.member(req.BidPackageID) {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "join the package room first"})
		return
	}

	client.Send(Response{
		Type: env.Type, Ref: env.Ref, Success: true,
		Data: g.Notifications.List(req.BidPackageID, time.Now().UTC()),
	})
}

func (g *Gateway) handleViewerCount(client *Client, env Envelope) {
	var req RoomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || req.BidPackageID == "" {
		client.Send(Response{Type: env.Type, Ref: env.Ref, Success: false, Message: "bidPackageId is required"})
		return
	}

	client.Send(Response{
		Type: env.Type, Ref: env.Ref, Success: true,
		Data: ViewerCount{BidPackageID: req.BidPackageID, Viewers: g.Presence.Count(req.BidPackageID)},
	})
}

// PublishMutation объявляет комнате об успешной мутации, пришедшей не
// по вебсокету (HTTP-поверхность использует тот же реестр и обязана
// давать те же события).
func (g *Gateway) PublishMutation(ctx context.Context, bidPackageID string, bid *models.Bid, created bool, authID string, fieldsChanged []string) {
	name := authID
	if contractor, err := g.Packages.GetContractorByAuthID(ctx, authID); err == nil && contractor != nil {
		name = contractor.Name
	}
	g.publishMutation(bidPackageID, bid, created, name, fieldsChanged, nil)
}

// publishMutation рассылает сырое событие bid:new / bid:updated всей
// комнате (включая действующего) и уведомление всем, кроме него: свое
// действие клиент и так видит в ответе.
func (g *Gateway) publishMutation(bidPackageID string, bid *models.Bid, created bool, name string, fieldsChanged []string, actor *Client) {
	eventType := EventBidUpdated
	notificationType := models.BidUpdatedNotification
	verb := "updated their bid"
	if created {
		eventType = EventBidNew
		notificationType = models.BidSubmittedNotification
		verb = "submitted a bid"
	} else if bid.Status == models.WithdrawnBid {
		verb = "withdrew their bid"
	}

	room := roomName(bidPackageID)
	g.Hub.Broadcast(room, Response{
		Type: eventType, Success: true,
		Data: BidBroadcast{
			BidPackageID:  bidPackageID,
			BidID:         bid.ID,
			By:            name,
			Amount:        &bid.Price,
			FieldsChanged: fieldsChanged,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		},
	}, nil)

	n := models.Notification{
		ID:             uuid.New().String(),
		Type:           notificationType,
		Message:        fmt.Sprintf("%s %s", name, verb),
		ContractorName: name,
		Price:          bid.Price,
		CreatedAt:      time.Now().UTC(),
	}
	g.Notifications.Append(bidPackageID, n)
	g.Hub.Broadcast(room, Response{Type: EventNotificationNew, Success: true, Data: n}, actor)
}

// broadcastViewerCount рассылает свежий счетчик зрителей комнате.
func (g *Gateway) broadcastViewerCount(bidPackageID string) {
	g.Hub.Broadcast(roomName(bidPackageID), Response{
		Type: EventViewerCount, Success: true,
		Data: ViewerCount{BidPackageID: bidPackageID, Viewers: g.Presence.Count(bidPackageID)},
	}, nil)
}

// disconnect снимает соединение со всех комнат и шлет по одному
// обновлению счетчика на затронутую комнату.
func (g *Gateway) disconnect(client *Client) {
	// Сначала выйти из всех комнат, чтобы рассылки больше не писали в
	// очередь этого соединения, и только потом закрыть ее.
	for bidPackageID := range client.rooms {
		g.Hub.Leave(roomName(bidPackageID), client)
	}
	affected := g.Presence.Disconnect(client.authID, client.connID)

	// Очередь закрывается без закрытия сокета: writePump дописывает
	// накопившиеся сообщения (включая auth:invalid) и закрывает
	// соединение сам. Снятие с учета и закрытие идут под clientsMu,
	// чтобы Logout не писал в уже закрытую очередь.
	g.clientsMu.Lock()
	g.unregisterLocked(client)
	close(client.send)
	g.clientsMu.Unlock()

	for _, bidPackageID := range affected {
		g.broadcastViewerCount(bidPackageID)
		if g.Presence.Count(bidPackageID) == 0 {
			g.Notifications.Sweep(bidPackageID)
		}
	}

	g.Logger.Printf("client disconnected: %s (%s)", client.connID, client.email)
}

// member проверяет членство соединения в комнате по таблице шлюза.
func (c *Client) member(bidPackageID string) bool {
	_, ok := c.rooms[bidPackageID]
	return ok
}

// contractorName возвращает отображаемое имя подрядчика, по возможности
// из хранилища, иначе почту из токена.
func (g *Gateway) contractorName(ctx context.Context, client *Client) string {
	contractor, err := g.Packages.GetContractorByAuthID(ctx, client.authID)
	if err != nil || contractor == nil {
		return client.email
	}
	return contractor.Name
}

func errorMessage(err error) string {
	if resp, ok := err.(*models.ErrorResponse); ok {
		return resp.Message
	}
	return "internal server error"
}
