package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/blackmichael/volume/internal/domain"
	"github.com/blackmichael/volume/internal/events"
	"github.com/spf13/cobra"
)

func newFeedCmd() *cobra.Command {
	var (
		partition string
		pages     int
	)
	cmd := &cobra.Command{
		Use:   "feed <article|magazine|flyer>",
		Short: "Print one partition of a content feed",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&partition, "partition", "followed", "followed or unfollowed")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")

	cmd.RunE = withApp(func(ctx context.Context, a *app, args []string) error {
		t, err := domain.ParseContentType(args[0])
		if err != nil {
			return err
		}
		p, err := domain.ParsePartition(partition)
		if err != nil {
			return err
		}

		agg := a.aggregator(t)
		if err := agg.FetchInitial(ctx); err != nil {
			return noConnection(err)
		}
		for i := 1; i < pages; i++ {
			if !agg.Snapshot(p).HasMore {
				break
			}
			if err := agg.FetchNextPage(ctx, p); err != nil {
				return noConnection(err)
			}
		}

		page := agg.Snapshot(p)
		return printItems(cmd.OutOrStdout(), a.session, page.Items, page.HasMore)
	})
	return cmd
}

func newFollowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "follow <publication|organization> <slug>",
		Short: "Follow a publication or organization",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			kind, err := domain.ParseFollowKind(args[0])
			if err != nil {
				return err
			}
			return a.session.Follow(ctx, kind, args[1])
		}),
	}
}

func newUnfollowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unfollow <publication|organization> <slug>",
		Short: "Stop following a publication or organization",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			kind, err := domain.ParseFollowKind(args[0])
			if err != nil {
				return err
			}
			return a.session.Unfollow(ctx, kind, args[1])
		}),
	}
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <type> <id>",
		Short: "Bookmark a content item",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			t, err := domain.ParseContentType(args[0])
			if err != nil {
				return err
			}
			return a.session.Save(ctx, t, args[1])
		}),
	}
}

func newUnsaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unsave <type> <id>",
		Short: "Remove a bookmark",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			t, err := domain.ParseContentType(args[0])
			if err != nil {
				return err
			}
			return a.session.Unsave(ctx, t, args[1])
		}),
	}
}

func newSavedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved <type>",
		Short: "List bookmarked items, most recent first",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = withApp(func(ctx context.Context, a *app, args []string) error {
		t, err := domain.ParseContentType(args[0])
		if err != nil {
			return err
		}
		items, err := a.session.SavedItems(ctx, t)
		if err != nil {
			return noConnection(err)
		}
		return printItems(cmd.OutOrStdout(), a.session, items, false)
	})
	return cmd
}

func newShoutoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shoutout <type> <id>",
		Short: "Shout out an article or magazine, or record a flyer click",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = withApp(func(ctx context.Context, a *app, args []string) error {
		t, err := domain.ParseContentType(args[0])
		if err != nil {
			return err
		}
		item, err := a.session.Item(ctx, t, args[1], a.lookup)
		if err != nil {
			return noConnection(err)
		}

		if flyer, ok := item.(*domain.Flyer); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%d clicks\n", a.session.RecordClick(ctx, flyer))
			return nil
		}

		n, err := a.session.Shoutout(ctx, item)
		if errors.Is(err, domain.ErrShoutoutLimit) {
			fmt.Fprintf(cmd.OutOrStdout(), "%d shoutouts (limit reached)\n", n)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d shoutouts\n", n)
		return nil
	})
	return cmd
}

func newDebriefCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debrief",
		Short: "Show the weekly debrief",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withApp(func(ctx context.Context, a *app, _ []string) error {
		d, err := a.session.WeeklyDebrief(ctx)
		if errors.Is(err, domain.ErrNoUser) {
			return fmt.Errorf("no user yet, run 'volume user' first")
		}
		if err != nil {
			return noConnection(err)
		}
		return printJSON(cmd.OutOrStdout(), d)
	})
	return cmd
}

func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <deep-link>",
		Short: "Resolve a deep link such as volume://article?id=X",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = withApp(func(ctx context.Context, a *app, args []string) error {
		item, err := a.session.ResolveDeepLink(ctx, args[0], a.lookup)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidDeepLink) {
				return err
			}
			return noConnection(err)
		}
		if article, ok := item.(*domain.Article); ok {
			a.session.MarkRead(ctx, article)
		}
		return printItems(cmd.OutOrStdout(), a.session, []domain.ContentItem{item}, false)
	})
	return cmd
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create the server-side user if needed and print its uuid",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withApp(func(ctx context.Context, a *app, _ []string) error {
		id, err := a.session.EnsureUser(ctx)
		if err != nil {
			return noConnection(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	})
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		bridge string
		types  []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print change events from a running bridge",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&bridge, "bridge", "http://localhost:8080", "bridge base URL")
	cmd.Flags().StringSliceVar(&types, "type", nil, "content types to watch")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		enc := json.NewEncoder(cmd.OutOrStdout())
		sub, err := events.NewSubscriber(bridge, types, func(m events.Message) {
			enc.Encode(m)
		}, newCLILogger())
		if err != nil {
			return err
		}
		if err := sub.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
	return cmd
}

// noConnection collapses transport failures into the message every screen
// shows for them.
func noConnection(err error) error {
	if domain.IsNoConnection(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no connection: %w", err)
	}
	return err
}

func printItems(w io.Writer, session *domain.Session, items []domain.ContentItem, hasMore bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tDATE\tCOUNT\tTITLE")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			item.ContentID(),
			item.OwnerSlug(),
			item.Date().Format("2006-01-02"),
			session.EffectiveCount(item),
			title(item),
		)
	}
	if hasMore {
		fmt.Fprintln(tw, "...\t\t\t\t")
	}
	return tw.Flush()
}

func title(item domain.ContentItem) string {
	switch it := item.(type) {
	case *domain.Article:
		return it.Title
	case *domain.Magazine:
		return it.Title
	case *domain.Flyer:
		return it.Title
	}
	return ""
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCLILogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
