package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/facegate/internal/access"
	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate API",
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
		"tolerance", cfg.Matching.Tolerance,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database, cfg.Vision.SignatureDim)
	if err != nil {
		slog.Error("open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	checks := map[string]handlers.Check{"store": store.Ping}

	var archive storage.ImageArchive
	if cfg.MinIO.Enabled() {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		archive = minioStore
		checks["minio"] = minioStore.Ping
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	// With NATS, decisions go to the ACCESS stream; the worker persists them
	// and the hub is fed from the stream. Without it, record in-process.
	var recorder access.Recorder = access.NewStoreRecorder(store, hub.Publish)
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		recorder = producer
		checks["nats"] = producer.Ping

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create access event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeAccessEvents(ctx, "api-ws", func(_ context.Context, ev models.AccessEvent) error {
			hub.Publish(ev)
			return nil
		}, true)
		if err != nil {
			slog.Warn("start access event consumer", "error", err)
		}
	}

	// The API keeps serving client management when the models are missing;
	// face operations then answer 503.
	var extractor access.SignatureExtractor
	if err := vision.InitRuntime(""); err != nil {
		slog.Warn("onnx runtime init failed, face recognition unavailable", "error", err)
	} else {
		defer vision.DestroyRuntime()
		ex, err := vision.Open(cfg.Vision)
		if err != nil {
			slog.Warn("load vision models failed, face recognition unavailable", "error", err)
		} else {
			defer ex.Close()
			extractor = ex
			slog.Info("vision models loaded", "models_dir", cfg.Vision.ModelsDir)
		}
	}

	engine := access.NewEngine(access.Config{
		Store:     store,
		Extractor: extractor,
		Archive:   archive,
		Recorder:  recorder,
		Options: access.Options{
			Tolerance:     &cfg.Matching.Tolerance,
			ScanTimeout:   cfg.Matching.ScanTimeout,
			MaxRosterSize: cfg.Matching.MaxRosterSize,
			ArchiveProbes: cfg.Matching.ArchiveProbes,
		},
	})

	router := api.NewRouter(api.RouterConfig{
		APIKey:        cfg.Server.APIKey,
		MaxImageBytes: cfg.Server.MaxImageBytes,
		Store:         store,
		Archive:       archive,
		Engine:        engine,
		Hub:           hub,
		Checks:        checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
