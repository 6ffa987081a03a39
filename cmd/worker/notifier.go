package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prepstream/shipment-relay/internal/config"
	"github.com/prepstream/shipment-relay/internal/db"
	"github.com/prepstream/shipment-relay/internal/kafka"
	"github.com/prepstream/shipment-relay/internal/logger"
	"github.com/prepstream/shipment-relay/internal/metrics"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/notify"
	"github.com/prepstream/shipment-relay/internal/repository"
	"github.com/prepstream/shipment-relay/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Run notification delivery worker (chat | ops)",
}

var notifierChatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Deliver chat-lane notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNotifier(cmd, model.ChatNotificationsTopic)
	},
}

var notifierOpsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Deliver ops-lane notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNotifier(cmd, model.OpsNotificationsTopic)
	},
}

func init() {
	notifierCmd.AddCommand(notifierChatCmd)
	notifierCmd.AddCommand(notifierOpsCmd)
}

func runNotifier(cmd *cobra.Command, topic string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Log.Level)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	outboundRepo := repository.NewOutboundRepository(dbx)

	// 3) providers → dispatcher
	var provs []notify.Provider
	for _, pc := range cfg.Providers {
		if !pc.Enabled || strings.TrimSpace(pc.BaseURL) == "" {
			continue
		}
		provs = append(provs,
			notify.NewHTTPProvider(
				pc.Name,
				strings.TrimRight(pc.BaseURL, "/"),
				pc.Path,
				pc.TimeoutMs,
				pc.Breaker.FailThreshold,
				pc.Breaker.OpenForMs,
			),
		)
	}
	if len(provs) == 0 {
		return fmt.Errorf("no providers enabled in config")
	}
	disp := notify.NewDispatcher(provs, cfg.Notifier.MaxAttempts.Chat, cfg.Notifier.MaxAttempts.Ops)

	// 4) kafka consumer
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "shiprelay-notifier"
	}
	groupID = groupID + "-" + strings.TrimPrefix(topic, "relay.notifications.")

	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	n := worker.NewNotifier(dbx, consumer, outboundRepo, disp, logger.L())

	// tune knobs
	if cfg.Notifier.WorkerCount > 0 {
		n.Workers = cfg.Notifier.WorkerCount
	}
	if cfg.Notifier.BatchSize > 0 {
		n.BatchSize = cfg.Notifier.BatchSize
	}
	if cfg.Notifier.BatchWait > 0 {
		n.BatchWait = cfg.Notifier.BatchWait
	}

	// 5) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> notifier started topic=%s group=%s workers=%d batchSize=%d batchWait=%s",
		topic, groupID, n.Workers, n.BatchSize, n.BatchWait)

	return n.Run(ctx)
}
