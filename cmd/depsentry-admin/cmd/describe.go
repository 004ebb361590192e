package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/depsentry/api/internal/infra/postgres"
	"github.com/depsentry/api/internal/infra/redis"
	"github.com/depsentry/api/pkg/domain/shared"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show details of a resource",
}

var describeScanCmd = &cobra.Command{
	Use:   "scan <scan-id>",
	Short: "Show a scan, its vulnerabilities and cached poll progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribeScan,
}

func init() {
	describeCmd.AddCommand(describeScanCmd)
}

func runDescribeScan(cmd *cobra.Command, args []string) error {
	scanID, err := shared.IDFromString(args[0])
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx := context.Background()

	sc, err := postgres.NewScanRepository(e.db).GetByID(ctx, scanID)
	if err != nil {
		return err
	}

	count, err := postgres.NewVulnerabilityRepository(e.db).CountByScan(ctx, scanID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", sc.ID)
	fmt.Fprintf(w, "Project:\t%s\n", sc.ProjectID)
	fmt.Fprintf(w, "Branch:\t%s\n", orDash(sc.Branch))
	fmt.Fprintf(w, "Provider:\t%s\n", orDash(sc.Provider))
	fmt.Fprintf(w, "Status:\t%s\n", sc.Status)
	fmt.Fprintf(w, "Vulnerabilities:\t%d (stored: %d)\n", sc.VulnerabilityCount, count)
	if sc.StartedAt != nil {
		fmt.Fprintf(w, "Started:\t%s\n", sc.StartedAt.Format(time.RFC3339))
	}
	if sc.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:\t%s\n", sc.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Created:\t%s\n", sc.CreatedAt.Format(time.RFC3339))

	progress, err := redis.NewPollProgressCache(e.redis).Get(ctx, scanID)
	switch {
	case shared.IsNotFound(err):
		fmt.Fprintf(w, "Poll progress:\t(none cached)\n")
	case err != nil:
		return err
	default:
		fmt.Fprintf(w, "Poll progress:\t%d%% (attempt %d, polled %s)\n",
			progress.Progress, progress.Attempt, progress.PolledAt.Format(time.RFC3339))
		if progress.DetailsURL != "" {
			fmt.Fprintf(w, "Details URL:\t%s\n", progress.DetailsURL)
		}
	}

	return w.Flush()
}
