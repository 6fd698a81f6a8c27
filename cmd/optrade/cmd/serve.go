package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/optrade/api"
	"github.com/rustyeddy/optrade/broadcast"
	"github.com/rustyeddy/optrade/config"
	"github.com/rustyeddy/optrade/engine"
	"github.com/rustyeddy/optrade/feed"
	"github.com/rustyeddy/optrade/gateway"
	"github.com/rustyeddy/optrade/journal"
	"github.com/rustyeddy/optrade/market"
	"github.com/rustyeddy/optrade/monitor"
	"github.com/rustyeddy/optrade/positions"
	"github.com/rustyeddy/optrade/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trading server",
	Long: `Start the HTTP server, connect to the price feed, and coordinate
trades across the configured accounts until interrupted.

Example:
  optrade serve --config config.yaml`,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveDebug      bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if serveConfigPath != "" {
		var err error
		cfg, err = config.LoadFromFile(serveConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	level := slog.LevelInfo
	if serveDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ledger, err := journal.NewSQLite(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open trade ledger: %w", err)
	}
	defer ledger.Close()

	accounts, err := registry.OpenAccounts(cfg.AccountsPath())
	if err != nil {
		return fmt.Errorf("open accounts: %w", err)
	}
	selected, err := registry.OpenSelection(cfg.SelectionPath())
	if err != nil {
		return fmt.Errorf("open selection: %w", err)
	}
	settings, err := registry.OpenSettings(cfg.SettingsPath(), cfg.Mode)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	mode, err := engine.ParseMode(settings.ExecutionMode())
	if err != nil {
		return fmt.Errorf("persisted settings: %w", err)
	}

	catalog, err := market.LoadCatalog(cfg.Data.Instruments)
	if err != nil {
		// The server is still useful for trading the already-selected set.
		logger.Warn("instrument catalog unavailable; search is disabled", "err", err)
		catalog = &market.Catalog{}
	} else {
		logger.Info("instrument catalog loaded", "contracts", catalog.Len())
	}

	book := positions.NewStore()
	ticks := market.NewLTPStore()
	hub := broadcast.NewHub(logger)
	defer hub.Close()
	events := api.NewEvents(hub)

	gw := gateway.Disabled()
	if cfg.Order.WorkerURL != "" {
		gw = gateway.NewWorkerClient(cfg.Order.WorkerURL, cfg.Order.InternalKey)
	}

	eng := engine.New(engine.Config{
		Mode:      mode,
		Accounts:  accounts,
		Selected:  selected,
		Book:      book,
		Ticks:     ticks,
		Gateway:   gw,
		Journal:   ledger,
		Publisher: events,
		Logger:    logger,
	})
	mon := monitor.New(book, ticks, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ticker *feed.Ticker
	if cfg.Feed.Enabled {
		// The feed authenticates with the first account's credentials; all
		// accounts see the same market data.
		accts := accounts.List()
		if len(accts) == 0 {
			logger.Warn("feed enabled but no accounts configured; feed not started")
		} else {
			ticker, err = feed.NewTicker(cfg.Feed.Endpoint, accts[0].APIKey, accts[0].AccessToken,
				func(tk market.Tick) {
					mon.OnTick(ctx, tk)
					events.PublishTick(tk)
				}, logger)
			if err != nil {
				return fmt.Errorf("build price feed: %w", err)
			}

			tokens := make([]market.Token, 0, len(selected.List()))
			for _, inst := range selected.List() {
				tokens = append(tokens, inst.Token)
			}
			if err := ticker.Subscribe(tokens...); err != nil {
				logger.Warn("initial subscribe failed", "err", err)
			}
			go func() {
				if err := ticker.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("price feed stopped", "err", err)
				}
			}()
		}
	}

	var sub api.Subscriber
	if ticker != nil {
		sub = ticker
	}
	server := api.NewServer(api.Config{
		Addr:     cfg.Server.Addr,
		Engine:   eng,
		Accounts: accounts,
		Selected: selected,
		Settings: settings,
		Catalog:  catalog,
		Ticks:    ticks,
		Book:     book,
		Journal:  ledger,
		Hub:      hub,
		Feed:     sub,
		Logger:   logger,
	})

	logger.Info("optrade starting",
		"addr", cfg.Server.Addr, "mode", string(mode),
		"accounts", len(accounts.List()), "selected", len(selected.List()))
	return server.Run(ctx)
}
