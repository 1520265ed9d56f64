package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ganz677/wb/internal/app"
	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/usecase"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch unanswered records from the marketplace into the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, application *app.Application) error {
			report, err := application.Pipeline().Ingest(ctx)
			if err != nil {
				return err
			}
			printIngest(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate answers for loaded records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		credential, _ := cmd.Flags().GetInt("credential")
		return withApp(cmd, func(ctx context.Context, application *app.Application) error {
			report, err := application.Pipeline().Generate(ctx, credential)
			if err != nil {
				return err
			}
			printGenerate(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

// --- send ---

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Publish generated answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, application *app.Application) error {
			report, err := application.Pipeline().Deliver(ctx)
			if err != nil {
				return err
			}
			printDeliver(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingest, generate and send once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		credential, _ := cmd.Flags().GetInt("credential")
		return withApp(cmd, func(ctx context.Context, application *app.Application) error {
			report, err := application.Run(ctx, credential)
			fmt.Fprint(cmd.OutOrStdout(), report.Digest(err))
			return err
		})
	},
}

// --- requeue ---

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Move failed records back into the pipeline",
	Long: `Move failed records back into the pipeline.

  --mode resend   keep the stored answer and retry delivery
  --mode regen    drop the answer and generate a new one`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		modeStr, _ := cmd.Flags().GetString("mode")
		kinds, _ := cmd.Flags().GetStringSlice("kind")

		mode, err := usecase.ParseRequeueMode(modeStr)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, application *app.Application) error {
			n, err := application.Requeue(ctx, mode, kinds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d item(s) for %s\n", n, mode)
			return nil
		})
	},
}

// --- schedule ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on the configured cron slots until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, application *app.Application) error {
			return application.Serve(ctx)
		})
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored item counts per kind and status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, application *app.Application) error {
			counts, err := application.Status(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), counts)
			return nil
		})
	},
}

// --- migrate ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(context.Context, *app.Application) error {
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		})
	},
}

func init() {
	generateCmd.Flags().Int("credential", 0, "index of the generator credential to start with")
	runCmd.Flags().Int("credential", 0, "index of the generator credential to start with")
	requeueCmd.Flags().String("mode", string(usecase.RequeueResend), "resend or regen")
	requeueCmd.Flags().StringSlice("kind", nil, "record kinds to requeue (feedback, question); all when empty")

	rootCmd.AddCommand(ingestCmd, generateCmd, sendCmd, runCmd, requeueCmd, scheduleCmd, statusCmd, migrateCmd)
}

func printIngest(w io.Writer, report usecase.IngestReport) {
	for _, res := range report.Results {
		fmt.Fprintf(w, "%s: pages %d, inserted %d\n", res.Strategy, res.Pages, res.Inserted)
		reasons := make([]string, 0, len(res.Skipped))
		for reason := range res.Skipped {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(w, "  skipped %s: %d\n", reason, res.Skipped[reason])
		}
	}
	for _, name := range report.Failed {
		fmt.Fprintf(w, "%s: failed\n", name)
	}
	fmt.Fprintf(w, "inserted total: %d\n", report.Inserted)
}

func printGenerate(w io.Writer, report usecase.RotationReport) {
	fmt.Fprintf(w, "generated %d (no text %d), ineligible %d, empty %d, failed %d\n",
		report.Generated, report.NoText, report.SkippedIneligible, report.Empty, report.Failed)
	fmt.Fprintf(w, "passes %d, last credential %d, stop: %s\n", report.Passes, report.Credential, report.StopReason)
	if report.QuotaHit {
		fmt.Fprintf(w, "quota hit, retry after %s\n", report.RetryAfter)
	}
}

func printDeliver(w io.Writer, report usecase.DeliveryReport) {
	fmt.Fprintf(w, "sent %d, failed %d\n", report.Sent, report.Failed)
}

func printStatus(w io.Writer, counts map[domain.Kind]map[domain.Status]int) {
	statuses := []domain.Status{domain.StatusLoaded, domain.StatusGenerated, domain.StatusSent, domain.StatusFailed}
	for _, kind := range domain.Kinds() {
		fmt.Fprintf(w, "%s:", kind)
		for _, status := range statuses {
			fmt.Fprintf(w, " %s=%d", status, counts[kind][status])
		}
		fmt.Fprintln(w)
	}
}
