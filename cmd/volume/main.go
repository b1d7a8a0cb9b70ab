package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/blackmichael/volume/internal/config"
	"github.com/blackmichael/volume/internal/domain"
	"github.com/blackmichael/volume/internal/graphql"
	"github.com/blackmichael/volume/internal/memory"
	"github.com/blackmichael/volume/internal/postgres"
	"github.com/blackmichael/volume/internal/sqlite"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "volume",
		Short:         "Volume reader core: feeds, follows, bookmarks and shout-outs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("VOLUME_CONFIG"), "path to a YAML config file")

	root.AddCommand(
		newServeCmd(),
		newFeedCmd(),
		newFollowCmd(),
		newUnfollowCmd(),
		newSaveCmd(),
		newUnsaveCmd(),
		newSavedCmd(),
		newShoutoutCmd(),
		newDebriefCmd(),
		newOpenCmd(),
		newUserCmd(),
		newWatchCmd(),
	)
	return root
}

// app is the wired object graph shared by every command.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       domain.KeyValueStore
	session     *domain.Session
	aggregators []*domain.Aggregator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Debug("opened preference store", "store", cfg.Store)

	gateway := graphql.NewClient(graphql.Config{
		Endpoint:          cfg.GraphQLURL,
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	prefs := domain.NewPreferences(store)

	session, err := domain.NewSession(ctx, domain.SessionConfig{
		ShoutoutCaps: map[domain.ContentType]int{
			domain.ContentArticle:  cfg.ShoutoutCap,
			domain.ContentMagazine: cfg.ShoutoutCap,
		},
	}, gateway, prefs, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store, session: session}
	for _, t := range domain.ContentTypes {
		agg, err := domain.NewAggregator(domain.AggregatorConfig{
			ContentType: t,
			PageSize:    cfg.PageSize,
			FollowedCap: cfg.FollowedCap,
		}, gateway, prefs, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create %s aggregator: %w", t, err)
		}
		a.aggregators = append(a.aggregators, agg)
	}
	return a, nil
}

func openStore(cfg *config.Config) (domain.KeyValueStore, error) {
	switch cfg.Store {
	case config.StorePostgres:
		repo, err := postgres.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreMemory:
		return memory.New(), nil
	default:
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (a *app) aggregator(t domain.ContentType) *domain.Aggregator {
	for _, agg := range a.aggregators {
		if agg.ContentType() == t {
			return agg
		}
	}
	return nil
}

func (a *app) lookup(t domain.ContentType, id string) (domain.ContentItem, bool) {
	if agg := a.aggregator(t); agg != nil {
		return agg.Lookup(t, id)
	}
	return nil, false
}

func (a *app) Close() {
	for _, agg := range a.aggregators {
		agg.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}

// withApp builds the app for the duration of one command.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(ctx, 2*a.cfg.HTTPTimeout)
		defer cancel()
		return fn(ctx, a, args)
	}
}
