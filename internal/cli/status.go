package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/socialhub/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show platform health, queue depth and post counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	app := newApp(ctx)
	defer func() {
		_ = app.Close()
	}()

	report := app.Health(ctx)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PLATFORM\tSTATUS\tAPI\tBREAKER\tQUOTA")
	for _, p := range domain.Platforms {
		ph, ok := report.Platforms[p]
		if !ok {
			_, _ = fmt.Fprintf(w, "%s\tnot configured\t-\t-\t-\n", p.DisplayName())
			continue
		}
		api := "ok"
		if !ph.API.Healthy {
			api = ph.API.Message
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.DisplayName(), ph.Status, api, ph.API.Breaker, ph.RateLimit.Status)
	}
	_ = w.Flush()

	fmt.Println()
	fmt.Printf("System: %s\n", report.SystemStatus)
	for name, dep := range report.Dependencies {
		fmt.Printf("%s: %s %s\n", name, dep.Status, dep.Error)
	}
	fmt.Printf("Queued jobs: %d\n", report.QueueDepth)
	for _, s := range []domain.PostStatus{domain.PostStatusDraft, domain.PostStatusApproved, domain.PostStatusPublished, domain.PostStatusRejected} {
		fmt.Printf("Posts %s: %d\n", s, report.Posts[s])
	}
}
