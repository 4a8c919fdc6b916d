// Command audit consumes booking events from RabbitMQ and appends them to
// the audit log file.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/meeting-room-booking/internal/config"
	"github.com/iliyamo/meeting-room-booking/internal/queue"
)

func main() {
	cfg := config.LoadQueue()
	log := config.NewLogger(cfg.Env, cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &queue.Consumer{URL: cfg.AMQPURL, Queue: cfg.EventsQueue, LogPath: cfg.AuditLogPath, Log: log}
	log.WithFields(logrus.Fields{"queue": cfg.EventsQueue, "path": cfg.AuditLogPath}).Info("audit consumer started")
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("audit consumer")
	}
	log.Info("audit consumer stopped")
}
