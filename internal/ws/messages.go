package ws

import "encoding/json"

// Типы входящих сообщений.
const (
	MsgJoinRoom           = "join-room"
	MsgLeaveRoom          = "leave-room"
	MsgSubmitOrUpdateBid  = "submit-or-update-bid"
	MsgUpdateBid          = "update-bid"
	MsgGetNotifications   = "get-notifications"
	MsgRequestViewerCount = "request-viewer-count"
)

// Типы серверных событий.
const (
	EventRoomJoined      = "room:joined"
	EventRoomLeft        = "room:left"
	EventBidNew          = "bid:new"
	EventBidUpdated      = "bid:updated"
	EventNotificationNew = "notification:new"
	EventViewerCount     = "viewer:count"
	EventAuthInvalid     = "auth:invalid"
	EventAuthLogout      = "auth:logout"
)

// Envelope - конверт входящего сообщения. Ref, если задан, возвращается
// клиенту в ответе, чтобы он мог сопоставить ответ со своим запросом.
type Envelope struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response - ответ или серверное событие.
type Response struct {
	Type    string      `json:"type"`
	Ref     string      `json:"ref,omitempty"`
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// RoomRequest - запрос, адресованный комнате пакета.
type RoomRequest struct {
	BidPackageID string `json:"bidPackageId"`
}

// UpdateBidMessage - изменение существующего предложения по соединению.
type UpdateBidMessage struct {
	BidID        string   `json:"bidId"`
	BidPackageID string   `json:"bidPackageId"`
	Price        *float64 `json:"price"`
	Label        *string  `json:"label"`
}

// RoomInfo - полезная нагрузка событий room:joined / room:left.
type RoomInfo struct {
	BidPackageID string `json:"bidPackageId"`
	RoomName     string `json:"roomName"`
}

// ViewerCount - полезная нагрузка события viewer:count.
type ViewerCount struct {
	BidPackageID string `json:"bidPackageId"`
	Viewers      int    `json:"viewers"`
}

// BidBroadcast - полезная нагрузка событий bid:new / bid:updated.
type BidBroadcast struct {
	BidPackageID  string   `json:"bidPackageId"`
	BidID         string   `json:"bidId"`
	By            string   `json:"by"`
	Amount        *float64 `json:"amount,omitempty"`
	FieldsChanged []string `json:"fieldsChanged,omitempty"`
	Timestamp     string   `json:"timestamp"`
}
