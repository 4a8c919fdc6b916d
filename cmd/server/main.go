package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/meeting-room-booking/internal/booking"
	"github.com/iliyamo/meeting-room-booking/internal/config"
	"github.com/iliyamo/meeting-room-booking/internal/database"
	"github.com/iliyamo/meeting-room-booking/internal/metrics"
	"github.com/iliyamo/meeting-room-booking/internal/queue"
	"github.com/iliyamo/meeting-room-booking/internal/repository"
	"github.com/iliyamo/meeting-room-booking/internal/router"
	"github.com/iliyamo/meeting-room-booking/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := config.NewLogger(cfg.Env, cfg.LogLevel, os.Stdout)

	norm, err := booking.NewNormalizer(cfg.Timezone, booking.RealClock{})
	if err != nil {
		log.WithError(err).Fatal("load reference timezone")
	}

	store, closeStore := openStore(cfg, log)
	defer closeStore()

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	opts := []service.Option{service.WithMetrics(m)}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.AMQPURL, cfg.EventsQueue)
		defer pub.Close()
		opts = append(opts, service.WithPublisher(pub))
	}
	validator := booking.NewValidator(cfg.Limits, norm.Now)
	svc := service.NewReservationService(store, norm, validator, log, opts...)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; response cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	e := router.New(router.Deps{
		Service:   svc,
		Log:       log,
		Redis:     rdb,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		Metrics:   m,
		Gatherer:  reg,
	})
	e.Pre(requestTimeout(cfg.RequestTimeout))

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.StoreDriver, "timezone": cfg.Timezone}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
}

// openStore builds the configured store and returns its cleanup function.
func openStore(cfg config.Config, log *logrus.Logger) (repository.Store, func()) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn("using in-memory store; reservations are lost on restart")
		return repository.NewMemoryStore(cfg.LockWaitTimeout), func() {}
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("connect to mysql")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("migrate schema")
	}
	return repository.NewReservationRepo(db), func() { _ = db.Close() }
}

// requestTimeout bounds every request context, including waits for a room
// lock.
func requestTimeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
