package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/billing"
	"github.com/voicequote/meterd/pkg/cli"
	"github.com/voicequote/meterd/pkg/config"
	"github.com/voicequote/meterd/pkg/observability"
	"github.com/voicequote/meterd/pkg/quota"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr).WithComponent("meterctl")

	db, err := accounts.Open(ctx, cfg.Database.Driver, cfg.Database.URL, accounts.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	store := accounts.NewSQLStore(db, accounts.Dialect(cfg.Database.Driver))
	paddle := billing.NewPaddleClient(billing.ClientConfig{
		BaseURL: cfg.Paddle.APIBaseURL,
		APIKey:  cfg.Paddle.APIKey,
		Timeout: cfg.Paddle.RequestTimeout,
		Logger:  logger,
	})
	lemon := billing.NewLemonClient(billing.ClientConfig{
		BaseURL: cfg.Lemon.APIBaseURL,
		APIKey:  cfg.Lemon.APIKey,
		Timeout: cfg.Lemon.RequestTimeout,
		Logger:  logger,
	})

	root := cli.NewRootCommand(&cli.Runtime{
		Out:     os.Stdout,
		Store:   store,
		Tracker: quota.NewTracker(store),
		Migrate: store.Migrate,
		Logger:  logger,
		Restorers: map[billing.Provider]*billing.Restorer{
			billing.ProviderPaddle: billing.NewRestorer(paddle, billing.PlanMapper{BusinessID: cfg.Paddle.BusinessPriceID}, store, logger, nil),
			billing.ProviderLemon:  billing.NewRestorer(lemon, billing.PlanMapper{BusinessID: cfg.Lemon.BusinessProductID}, store, logger, nil),
		},
	})
	return root.Execute(ctx, args)
}
