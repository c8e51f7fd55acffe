package router

import (
	"net/http"

	"github.com/senyabanana/bid-room-service/internal/handlers"
	"github.com/senyabanana/bid-room-service/internal/ws"
)

func InitRoutes(bidHandler *handlers.BidHandler, authHandler *handlers.AuthHandler, gateway *ws.Gateway) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", handlers.PingHandler)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)

	mux.HandleFunc("POST /api/bids/submit", bidHandler.SubmitBid)
	mux.HandleFunc("PATCH /api/bids/{bidId}", bidHandler.UpdateBid)
	mux.HandleFunc("DELETE /api/bids/{bidId}", bidHandler.WithdrawBid)
	mux.HandleFunc("GET /api/bids/my", bidHandler.GetMyBids)
	mux.HandleFunc("GET /api/bids/package/{bidPackageId}", bidHandler.GetPackageBids)
	mux.HandleFunc("GET /api/bids/package/{bidPackageId}/statistics", bidHandler.GetPackageStatistics)
	mux.HandleFunc("GET /api/bids/package/{bidPackageId}/leaderboard", bidHandler.GetLeaderboard)
	mux.HandleFunc("GET /api/bids/package/{bidPackageId}/history", bidHandler.GetHistory)
	mux.HandleFunc("GET /api/bids/package/{bidPackageId}/my-bid", bidHandler.GetMyBidForPackage)
	mux.HandleFunc("GET /api/packages/my", bidHandler.GetMyPackage)

	mux.HandleFunc("GET /ws", gateway.ServeWS)

	return mux
}
