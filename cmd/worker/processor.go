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
	"github.com/prepstream/shipment-relay/internal/logger"
	"github.com/prepstream/shipment-relay/internal/metrics"
	"github.com/prepstream/shipment-relay/internal/repository"
	"github.com/prepstream/shipment-relay/internal/service/relay"
	"github.com/prepstream/shipment-relay/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var processorCmd = &cobra.Command{
	Use:   "processor",
	Short: "Run inbound event processing worker",
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

		eventsRepo := repository.NewEventsRepository(dbx)
		outboundRepo := repository.NewOutboundRepository(dbx)
		conversationsRepo := repository.NewConversationsRepository(dbx)
		relaySvc := relay.New(dbx, outboundRepo, conversationsRepo)

		r := worker.NewRunner(eventsRepo, worker.DefaultProcessors(relaySvc), logger.L())
		if cfg.Processor.Interval > 0 {
			r.Interval = cfg.Processor.Interval
		}
		if cfg.Processor.BatchSize > 0 {
			r.BatchSize = cfg.Processor.BatchSize
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> processor started interval=%s batchSize=%d", r.Interval, r.BatchSize)

		return r.Run(ctx)
	},
}
