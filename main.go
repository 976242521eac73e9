package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"presale-referral-system/handlers"
	"presale-referral-system/middleware"
	"presale-referral-system/models"
	"presale-referral-system/services"
	"presale-referral-system/utils"
	"presale-referral-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Wallet-Address, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Player{},
		&models.ReferralBinding{},
		&models.Purchase{},
		&models.RewardGrant{},
		&models.PresaleRound{},
		&models.LeaderboardSnapshot{},
		&models.Notification{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// R2 is optional — without it the leaderboard snapshot stays DB-only
	if err := utils.InitR2(); err != nil {
		log.Printf("⚠️  R2 not configured, leaderboard snapshots will not be published: %v", err)
	}

	notifier := services.NewNotifier(db)
	ledgerService := services.NewLedgerService(db)
	referralService := services.NewReferralService(db, ledgerService, notifier)
	rewardService := services.NewRewardService(db, ledgerService, notifier)
	roundService := services.NewRoundService(db)
	purchaseService := services.NewPurchaseService(db, ledgerService, referralService, rewardService, roundService, notifier)
	leaderboardService := services.NewLeaderboardService(db)

	settlementClient := workers.NewSettlementClient(purchaseService)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go workers.PollSettlements(ctx, settlementClient, 10*time.Second)

	roundService.StartRoundScheduler()
	leaderboardService.StartSnapshotScheduler()

	// ✅ Setup routes — all behind enforced Gateway auth
	handlers.SetupReferralRoutes(app, referralService, notifier)
	handlers.SetupPurchaseRoutes(app, purchaseService)
	handlers.SetupLeaderboardRoutes(app, leaderboardService, roundService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Settlement polling running (every 10s)")
	log.Println("✅ Round + leaderboard schedulers running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
