package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"

	"log-viewer-backend/config"
	_ "log-viewer-backend/docs"
	"log-viewer-backend/internal/controller"
	"log-viewer-backend/internal/elasticsearch"
	"log-viewer-backend/internal/filestate"
	"log-viewer-backend/internal/hub"
	"log-viewer-backend/internal/kafka"
	"log-viewer-backend/internal/metrics"
	"log-viewer-backend/internal/parser"
	"log-viewer-backend/internal/repository"
	"log-viewer-backend/internal/scheduler"
	"log-viewer-backend/internal/service"
	"log-viewer-backend/internal/store"
	"log-viewer-backend/internal/timescaledb"
)

// @title           Log Viewer API
// @version         1.0
// @description     Real-time multiplexed log viewer. Raw lines are parsed, retained for a bounded window and streamed to WebSocket viewers.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:4000
// @BasePath  /
// @schemes   http

// @tag.name         logs
// @tag.description  Ingest and query retained logs

// @tag.name         archive
// @tag.description  Search the Elasticsearch archive

// @tag.name         stream
// @tag.description  Live WebSocket stream

// @tag.name         health
// @tag.description  API health check operations

func main() {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.BindFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	config.SetupLogger(cfg.Log)

	app := fx.New(
		fx.Supply(cfg),
		// Core Dependencies
		fx.Provide(
			NewRetentionStore,
			NewHub,
			parser.NewLineParser,
			NewFileStateManager,
		),
		// Infrastructure Dependencies
		fx.Provide(
			NewGinEngine,
			NewRecordSinks,
			NewArchiveRepository,
			service.NewSinkDispatcher,
			service.NewIngestService,
			service.NewLogQueryService,
			service.NewArchiveQueryService,
			service.NewFileSourceService,
			controller.NewLogController,
			controller.NewWSController,
		),
		fx.Invoke(
			StartSinkDispatcher,
			RegisterScheduler,
			StartKafkaSource,
			StartStdinSource,
			RegisterAPIRoutes,
		),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}
	<-app.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	log.Info().Msg("Shutting down application...")
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown due to error or timeout")
	}
	log.Info().Msg("All background processes finished. Exiting.")
}

// --- Factory Functions ---

// NewRetentionStore opens the configured backend. Its close hook is the
// first one registered, so it runs after everything that uses the store
// has stopped.
func NewRetentionStore(lc fx.Lifecycle, cfg *config.Config) (store.RetentionStore, error) {
	var st store.RetentionStore
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		sqliteStore, err := store.NewSQLiteStore(store.SQLiteConfig{
			Dir:        cfg.Store.SQLiteDir,
			Retention:  cfg.Store.Retention,
			MaxRecords: cfg.Store.MaxRecords,
		})
		if err != nil {
			return nil, err
		}
		st = sqliteStore
	default:
		st = store.NewRingStore(cfg.Store.BufferSize, cfg.Store.Retention)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info().Str("backend", st.Backend()).Msg("Closing retention store")
			return st.Close()
		},
	})
	return st, nil
}

func NewHub(cfg *config.Config, st store.RetentionStore) *hub.Hub {
	return hub.New(st, hub.Config{
		SnapshotLimit: cfg.Hub.SnapshotLimit,
		SendQueue:     cfg.Hub.SendQueue,
	})
}

func NewFileStateManager(cfg *config.Config) filestate.Manager {
	return filestate.NewManager(cfg.FileState.FilePath)
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return r
}

// NewRecordSinks builds every enabled external sink. A sink that is
// enabled but cannot be reached fails startup.
func NewRecordSinks(lc fx.Lifecycle, cfg *config.Config) ([]service.RecordSink, error) {
	var sinks []service.RecordSink

	if cfg.Elasticsearch.Enabled {
		client, err := elasticsearch.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		archive, err := elasticsearch.NewArchiveStore(lc, cfg, client)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, archive)
	}
	if cfg.Kafka.SinkEnabled {
		producer, err := kafka.NewKafkaRecordProducer(lc, cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, producer)
	}
	if cfg.TimescaleDB.Enabled {
		metricStore, err := timescaledb.NewTimescaleMetricStore(lc, cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, service.NewMetricSink(metrics.NewRecordExtractor(), metricStore))
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	log.Info().Strs("sinks", names).Msg("Record sinks configured")
	return sinks, nil
}

// NewArchiveRepository returns a nil repository when the archive is
// disabled.
func NewArchiveRepository(cfg *config.Config) (repository.ArchiveRepository, error) {
	if !cfg.Elasticsearch.Enabled {
		return nil, nil
	}
	client, err := elasticsearch.NewTypedClient(cfg)
	if err != nil {
		return nil, err
	}
	return elasticsearch.NewArchiveRepository(cfg, client), nil
}

// --- Invoker Functions ---

func StartSinkDispatcher(lc fx.Lifecycle, dispatcher service.SinkDispatcher) {
	runInBackground(lc, "sink dispatcher", dispatcher.Run)
}

func RegisterScheduler(lc fx.Lifecycle, cfg *config.Config, h *hub.Hub, fileSvc service.FileSourceService) error {
	_, err := scheduler.NewScheduler(lc, cfg, h, fileSvc)
	return err
}

func StartKafkaSource(lc fx.Lifecycle, cfg *config.Config, ingest service.IngestService) {
	if !cfg.Kafka.SourceEnabled {
		return
	}
	consumer := kafka.NewKafkaLineConsumer(lc, cfg)
	runInBackground(lc, "kafka source", service.NewKafkaSourceService(consumer, ingest, cfg).Run)
}

// StartStdinSource reads piped input. The read cannot be interrupted, so
// the goroutine is not waited for on shutdown.
func StartStdinSource(lc fx.Lifecycle, cfg *config.Config, ingest service.IngestService) {
	if !cfg.Stdin.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	src := service.NewStdinSource(ingest, os.Stdin, os.Stdout, cfg.Stdin.Echo)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("Reading standard input failed")
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// RegisterAPIRoutes is invoked last so its stop hook runs first: viewers
// are disconnected before maintenance and the store shut down.
func RegisterAPIRoutes(
	lifecycle fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	h *hub.Hub,
	logController *controller.LogController,
	wsController *controller.WSController,
) {
	controller.RegisterLogRoutes(router, logController)
	controller.RegisterWSRoutes(router, wsController)

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", server.Addr, err)
			}
			log.Info().
				Str("addr", server.Addr).
				Str("websocket", "ws://"+server.Addr+"/ws").
				Str("backend", cfg.Store.Backend).
				Msg("Log viewer listening")
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("HTTP server Serve error")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Shutting down HTTP server...")
			err := server.Shutdown(ctx)
			h.Shutdown()
			return err
		},
	})
}

// runInBackground starts run on app start and on stop cancels it and
// waits for it to return.
func runInBackground(lc fx.Lifecycle, name string, run func(ctx context.Context, wg *sync.WaitGroup)) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info().Str("component", name).Msg("Starting background worker")
			wg.Add(1)
			go run(ctx, &wg)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return fmt.Errorf("%s did not stop: %w", name, stopCtx.Err())
			}
		},
	})
}
