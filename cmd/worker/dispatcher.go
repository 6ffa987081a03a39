package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prepstream/shipment-relay/internal/config"
	"github.com/prepstream/shipment-relay/internal/db"
	"github.com/prepstream/shipment-relay/internal/kafka"
	"github.com/prepstream/shipment-relay/internal/logger"
	"github.com/prepstream/shipment-relay/internal/metrics"
	"github.com/prepstream/shipment-relay/internal/repository"
	"github.com/prepstream/shipment-relay/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run outbound claim/publish worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

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

		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		outboundRepo := repository.NewOutboundRepository(dbx)

		d := worker.NewOutboundDispatcher(outboundRepo, producer, logger.L())
		if cfg.Dispatcher.IdleWait > 0 {
			d.IdleWait = cfg.Dispatcher.IdleWait
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> dispatcher started idleWait=%s", d.IdleWait)

		return d.Run(ctx)
	},
}
