package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/radworker/internal/adapters/http/api"
	"github.com/okian/radworker/internal/adapters/http/swagger"
	"github.com/okian/radworker/internal/adapters/mq/consumer"
	service "github.com/okian/radworker/internal/app"
	"github.com/okian/radworker/internal/config"
	"github.com/okian/radworker/internal/domain/detect"
	"github.com/okian/radworker/pkg/logger"
	"github.com/okian/radworker/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	// Bootstrap logger so config errors are reported the same way.
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Get().Fatal(ctx, "failed to load config", logger.Error(err))
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := metrics.Default().RegisterRuntimeCollectors(); err != nil {
		log.Warn(ctx, "runtime collectors not registered", logger.Error(err))
	}

	svc, err := newService(cfg, log)
	if err != nil {
		log.Fatal(ctx, "invalid worker settings", logger.Error(err))
	}
	if err := svc.Start(ctx); err != nil {
		log.Fatal(ctx, "failed to start service", logger.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	var (
		session *consumer.Session
		cons    *consumer.Consumer
	)
	if cfg.AMQPURL != "" {
		session, err = consumer.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatal(ctx, "failed to connect to broker", logger.Error(err))
		}
		cons = consumer.New(session.Channel, cfg.AMQPQueue, svc, consumer.WithLogger(log.Named("consumer")))
		go func() {
			if err := cons.Run(ctx); err != nil {
				log.Error(ctx, "queue consumer stopped", logger.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if cons != nil {
		if err := cons.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "consumer shutdown failed", logger.Error(err))
		}
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	if session != nil {
		if err := session.Close(); err != nil {
			log.Warn(ctx, "broker connection close failed", logger.Error(err))
		}
	}

	log.Info(ctx, "server stopped")
}

// newService maps the loaded configuration onto the job service.
func newService(cfg *config.Config, log logger.Logger) (*service.Service, error) {
	strategy, err := detect.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return service.New(
		service.WithLogger(log),
		service.WithSettings(service.Settings{
			FeatureList:   cfg.FeatureList,
			Strategy:      strategy,
			Contamination: cfg.Contamination,
		}),
		service.WithEnv(service.Env{
			TreesFactor:  cfg.TreesFactor,
			SampleFactor: cfg.SampleFactor,
			MinScore:     cfg.MinScore,
			AIService:    cfg.AIService,
		}),
		service.WithNextService(cfg.NextService),
		service.WithMaxRetries(cfg.MaxRetries),
		service.WithDeliveryTimeout(cfg.DeliveryTimeout()),
		service.WithShutdownTimeout(cfg.ShutdownTimeout()),
	), nil
}

// newMux registers the API docs and intake routes.
func newMux(ctx context.Context, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux
}
