package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vigilo/proctor_backend_v1/internal/config"
	"github.com/vigilo/proctor_backend_v1/internal/database"
	"github.com/vigilo/proctor_backend_v1/internal/detector"
	"github.com/vigilo/proctor_backend_v1/internal/proctor"
	"github.com/vigilo/proctor_backend_v1/internal/routes"
	"github.com/vigilo/proctor_backend_v1/internal/storage"
	"github.com/vigilo/proctor_backend_v1/internal/ws"
)

func main() {
	// Load .env (non-fatal if missing in production)
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}

	if err := database.Migrate(db); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	if err := database.SeedAdmin(db, cfg, log); err != nil {
		log.Fatal("admin seed failed", zap.Error(err))
	}

	evidence, err := storage.NewEvidenceStore(cfg.EvidenceDir)
	if err != nil {
		log.Fatal("evidence store init failed", zap.Error(err))
	}

	hubs := ws.NewHubs()
	go hubs.Proctor.Run()
	go hubs.Student.Run()

	det := detector.NewClient(cfg.DetectorBaseURL, cfg.DetectorTimeout)

	orc := proctor.New(
		proctor.Config{
			MatchThreshold:      cfg.MatchThreshold,
			LockThreshold:       cfg.LockThreshold,
			SilentCheckInterval: cfg.SilentCheckInterval,
			MismatchCooldown:    cfg.MismatchCooldown,
			CaptureFrames:       cfg.CaptureFrames,
			CaptureFrameDelay:   cfg.CaptureFrameDelay,
			InitTimeout:         cfg.CaptureInitTime,
			FeedStaleAfter:      cfg.FeedStaleAfter,
		},
		det,
		&storage.IdentityStore{DB: db},
		evidence,
		&storage.ViolationRecorder{DB: db},
		&storage.SessionStore{DB: db},
		&ws.Notifier{Hubs: hubs},
		log,
	)

	r := gin.Default()
	routes.Register(r, db, cfg, orc, hubs, log)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Info("starting server", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}
