package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/senyabanana/bid-room-service/internal/db"
	"github.com/senyabanana/bid-room-service/internal/handlers"
	"github.com/senyabanana/bid-room-service/internal/repository"
	"github.com/senyabanana/bid-room-service/internal/router"
	"github.com/senyabanana/bid-room-service/internal/router/config"
	"github.com/senyabanana/bid-room-service/internal/services"
	"github.com/senyabanana/bid-room-service/internal/ws"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	runDBMigration(cfg.MigrationURL, cfg.PostgresConn)

	dbPool, err := db.InitDb(cfg)
	if err != nil {
		log.Fatalf("error initializing database: %v", err)
	}
	defer dbPool.Close()

	logger := log.New(os.Stdout, "INFO: ", log.LstdFlags)
	secret := []byte(cfg.JWTSecret)

	packageRepo := repository.NewPostgresPackageRepository(dbPool)
	bidRepo := repository.NewPostgresBidRepository(dbPool)

	gate := services.NewInvitationService(packageRepo)
	bidService := services.NewBidService(bidRepo, packageRepo, gate)
	leaderboardService := services.NewLeaderboardService(bidRepo, packageRepo, gate)

	gateway := ws.NewGateway(bidService, packageRepo, logger, secret, 5*time.Second)

	bidHandler := handlers.NewBidHandler(bidService, leaderboardService, gateway, logger, 5*time.Second, secret)
	authHandler := handlers.NewAuthHandler(packageRepo, gateway, logger, 5*time.Second, secret, cfg.TokenDuration)

	routes := router.InitRoutes(bidHandler, authHandler, gateway)

	log.Printf("server is listening on %s...", cfg.ServerAddress)
	if err := http.ListenAndServe(cfg.ServerAddress, routes); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func runDBMigration(migrationURL string, dbSource string) {
	migration, err := migrate.New(migrationURL, dbSource)
	if err != nil {
		log.Fatal("cannot create a new migrate instance", err)
	}

	if err = migration.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal("failed to run migrate up:", err)
	}
	log.Println("db migrated successfully")
}
