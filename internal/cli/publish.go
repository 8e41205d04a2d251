package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/socialhub/internal/control"
	"github.com/vietddude/socialhub/internal/core/domain"
)

var publishCmd = &cobra.Command{
	Use:   "publish [post_id]",
	Short: "Publish an approved post now",
	Args:  cobra.ExactArgs(1),
	Run:   runPublish,
}

var approveCmd = &cobra.Command{
	Use:   "approve [post_id]",
	Short: "Approve a draft post",
	Args:  cobra.ExactArgs(1),
	Run:   runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject [post_id]",
	Short: "Reject a draft post",
	Args:  cobra.ExactArgs(1),
	Run:   runReject,
}

var markPublishedCmd = &cobra.Command{
	Use:   "mark-published [post_id] [platform_post_id]",
	Short: "Record a post that was published by hand",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runMarkPublished,
}

var collectCmd = &cobra.Command{
	Use:   "collect [post_id]",
	Short: "Collect engagement metrics for a published post now",
	Args:  cobra.ExactArgs(1),
	Run:   runCollect,
}

func init() {
	rootCmd.AddCommand(publishCmd, approveCmd, rejectCmd, markPublishedCmd, collectCmd)
}

func runPublish(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	warnVolatileQueue(app)
	defer func() {
		_ = app.Close()
	}()

	res, err := app.Orchestrator.Publish(ctx, args[0])
	if err != nil {
		slog.Error("Publish failed", "post_id", args[0], "error", err)
		os.Exit(1)
	}
	printJSON(res)
}

func runApprove(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	post, err := app.Orchestrator.Approve(ctx, args[0])
	if err != nil {
		slog.Error("Approve failed", "post_id", args[0], "error", err)
		os.Exit(1)
	}
	printJSON(post)
}

func runReject(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	post, err := app.Orchestrator.Reject(ctx, args[0])
	if err != nil {
		slog.Error("Reject failed", "post_id", args[0], "error", err)
		os.Exit(1)
	}
	printJSON(post)
}

func runMarkPublished(cmd *cobra.Command, args []string) {
	var platformPostID string
	if len(args) == 2 {
		platformPostID = args[1]
	}

	ctx := context.Background()
	app := newApp(ctx)
	warnVolatileQueue(app)
	defer func() {
		_ = app.Close()
	}()

	post, err := app.Orchestrator.MarkAsManuallyPublished(ctx, args[0], platformPostID)
	if err != nil {
		slog.Error("Mark published failed", "post_id", args[0], "error", err)
		os.Exit(1)
	}
	printJSON(post)
}

func runCollect(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	if err := app.Collector.Handle(ctx, domain.NewJob(domain.JobCollectMetrics, args[0])); err != nil {
		slog.Error("Metrics collection failed", "post_id", args[0], "error", err)
		os.Exit(1)
	}

	m, err := app.Metrics.Get(ctx, args[0])
	if err != nil {
		slog.Warn("No metrics stored", "post_id", args[0], "error", err)
		return
	}
	printJSON(m)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// warnVolatileQueue flags commands whose follow-up jobs die with the process.
func warnVolatileQueue(app *control.App) {
	if app.DurableQueue() {
		return
	}
	slog.Warn("No redis configured; scheduled metrics collection is lost when this command exits")
}
