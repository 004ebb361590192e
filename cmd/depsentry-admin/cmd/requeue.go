package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/depsentry/api/internal/infra/jobs"
	"github.com/depsentry/api/internal/infra/postgres"
	"github.com/depsentry/api/pkg/domain/shared"
)

var requeuePollCmd = &cobra.Command{
	Use:   "requeue-poll <scan-id>",
	Short: "Enqueue a fresh poll for a scan",
	Long: `Enqueue a fresh attempt-1 poll task for a scan that lost its poll
loop, for example after a queue flush. The scan must be in a non-terminal
status; the attempt budget starts over.`,
	Args: cobra.ExactArgs(1),
	RunE: runRequeuePoll,
}

func runRequeuePoll(cmd *cobra.Command, args []string) error {
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
	if sc.Status.IsTerminal() {
		return fmt.Errorf("scan %s already finished with status %s", sc.ID, sc.Status)
	}

	jobClient, err := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     e.cfg.Redis.Addr(),
		RedisPassword: e.cfg.Redis.Password,
		RedisDB:       e.cfg.Redis.DB,
	}, e.log)
	if err != nil {
		return err
	}
	defer jobClient.Close()

	if err := jobClient.EnqueueScanPoll(ctx, jobs.ScanPollPayload{
		ScanID:  sc.ID.String(),
		Attempt: 1,
	}, 0); err != nil {
		return err
	}

	fmt.Printf("poll requeued for scan %s (status %s)\n", sc.ID, sc.Status)
	return nil
}
