package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Capitan-Parrot/animal-detection/internal/api"
	"github.com/Capitan-Parrot/animal-detection/internal/config"
	"github.com/Capitan-Parrot/animal-detection/internal/database"
	"github.com/Capitan-Parrot/animal-detection/internal/kafka"
	"github.com/Capitan-Parrot/animal-detection/internal/location"
	"github.com/Capitan-Parrot/animal-detection/internal/logging"
	"github.com/Capitan-Parrot/animal-detection/internal/runner"
	"github.com/Capitan-Parrot/animal-detection/internal/s3"
	"github.com/Capitan-Parrot/animal-detection/internal/services/alert"
	"github.com/Capitan-Parrot/animal-detection/internal/simulator"
	"github.com/Capitan-Parrot/animal-detection/internal/supervisor"
	"github.com/Capitan-Parrot/animal-detection/internal/websocket"
)

const (
	alertQueueSize   = 256
	archiveQueueSize = 512
)

func main() {
	// Чтение конфига
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logging.Info().Str("addr", cfg.HTTP.Addr).Msg("main: init...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация базы данных
	db, err := database.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to Postgres")
	}
	defer db.Close()
	if err := db.Init(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to init schema")
	}

	hub := websocket.NewHub()
	render := simulator.RenderFanout{hub}

	// Инициализация s3, архив кадров необязателен
	var frameCounter api.FrameCounter
	var archive *s3.Archive
	if cfg.Minio.Endpoint != "" {
		minioClient, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.Secure)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to connect to MinIO")
		}
		if err := minioClient.EnsureBucket(ctx); err != nil {
			logging.Fatal().Err(err).Msg("failed to prepare bucket")
		}
		archive = s3.NewArchive(minioClient, archiveQueueSize)
		render = append(render, archive)
		frameCounter = minioClient
	} else {
		logging.Warn().Msg("minio endpoint not set, frame archive disabled")
	}

	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.CommandTopic)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create Kafka consumer")
	}
	defer consumer.Close()

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.HeartbeatTopic)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create Kafka producer")
	}
	defer producer.Close()

	alerts := alert.NewAsyncSink("alerts", alert.MultiSink{alert.LogSink{}, hub}, alertQueueSize)

	r := runner.New(db, producer, consumer, runner.Options{
		Simulator: cfg.Simulator,
		Location:  location.NewLatest(),
		Alerts:    alerts,
		Render:    render,
	})

	handlers := api.NewHandlers(r, frameCounter, http.HandlerFunc(hub.ServeWS))
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sup := supervisor.New("animal-detection", supervisor.TreeConfig{ShutdownTimeout: cfg.HTTP.ShutdownTimeout})
	sup.Add(supervisor.NewFunc("websocket-hub", hub.Run))
	sup.Add(supervisor.Loop("kafka-consumer", func(ctx context.Context) {
		consumer.StartListening(ctx)
		<-ctx.Done()
	}))
	sup.Add(supervisor.Loop("command-listener", r.ListenAndRun))
	sup.Add(supervisor.Loop("stop-events", func(ctx context.Context) {
		r.ProcessStopEvents(ctx, 0)
	}))
	sup.Add(supervisor.NewHTTPService(server, cfg.HTTP.ShutdownTimeout))

	logging.Info().Str("addr", cfg.HTTP.Addr).Msg("starting animal detection server")
	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor stopped")
	}

	logging.Info().Msg("Завершение работы...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	r.Close(shutdownCtx)
	alerts.Close()
	if archive != nil {
		archive.Close()
	}
}
