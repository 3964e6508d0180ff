package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chronodrachma/elastic/pkg/config"
	"github.com/chronodrachma/elastic/pkg/core/ledger"
	"github.com/chronodrachma/elastic/pkg/journal"
	"github.com/chronodrachma/elastic/pkg/metrics"
	"github.com/chronodrachma/elastic/pkg/node"
	"github.com/chronodrachma/elastic/pkg/rebaser"
	"github.com/chronodrachma/elastic/pkg/rpc"
	"github.com/chronodrachma/elastic/pkg/wallet"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ledger node",
	Long: `Opens the ledger store (initializing genesis on first start), serves the
HTTP API, and, when enabled, schedules operator rebases from the price oracle.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runNode(ctx, cfg, logger)
	},
}

func runNode(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	genesis, err := cfg.Genesis()
	if err != nil {
		return err
	}
	operators, err := cfg.OperatorAddresses()
	if err != nil {
		return err
	}

	// 1. Storage
	storePath := cfg.Storage.BadgerPath
	if cfg.InMemoryStore() {
		storePath = ""
	}
	store, err := ledger.NewBadgerStore(storePath)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer store.Close()

	rec, err := openJournal(cfg.Storage.JournalPath, log)
	if err != nil {
		return err
	}
	defer rec.Close()

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg, cfg.Decimals())

	// 3. Ledger node
	n, err := node.Open(node.Config{
		Genesis: genesis,
		Deps: ledger.Deps{
			Authority: ledger.NewStaticAuthority(operators...),
			Clock:     ledger.SystemClock{},
			Sink:      journal.Multi{rec, collector},
		},
		Store:    store,
		Observer: collector,
		Log:      log.Named("node"),
	})
	if err != nil {
		return err
	}
	collector.SetSupply(n.TotalSupply())

	// 4. Rebaser
	var r *rebaser.Rebaser
	if cfg.Rebaser.Enabled {
		if r, err = newRebaser(cfg, n, log.Named("rebaser")); err != nil {
			return err
		}
		if err := r.Start(ctx); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	// 5. RPC
	server := rpc.NewServer(n, rpc.Config{
		Network:  cfg.Network,
		Decimals: cfg.Decimals(),
		Journal:  rec,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:      log.Named("rpc"),
	})
	g.Go(func() error {
		return server.Serve(ctx, cfg.RPC.Listen)
	})

	if r != nil {
		g.Go(func() error {
			<-ctx.Done()
			r.Stop()
			return nil
		})
	}

	err = g.Wait()
	log.Info("node stopped")
	return err
}

func openJournal(path string, log *zap.Logger) (journal.Recorder, error) {
	if path == "none" {
		return journal.NoopRecorder{}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	rec, err := journal.NewSQLiteRecorder(path, log.Named("journal"))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return rec, nil
}

func newRebaser(cfg *config.Config, n *node.Node, log *zap.Logger) (*rebaser.Rebaser, error) {
	key, err := wallet.LoadKey(cfg.Rebaser.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load operator key: %w", err)
	}

	var prices rebaser.PriceSource
	if cfg.Rebaser.PriceFile != "" {
		prices = rebaser.FilePrice{Path: cfg.Rebaser.PriceFile}
	} else {
		price, err := cfg.StaticPrice()
		if err != nil {
			return nil, err
		}
		prices = rebaser.NewStaticPrice(price)
	}

	return rebaser.New(n, rebaser.Config{
		Schedule: cfg.Rebaser.Schedule,
		Key:      key,
		Prices:   prices,
		Log:      log,
	})
}
