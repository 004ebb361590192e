package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/depsentry/api/internal/infra/postgres"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/shared"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List resources",
}

var getScansCmd = &cobra.Command{
	Use:     "scans",
	Aliases: []string{"scan"},
	Short:   "List scans",
	RunE:    runGetScans,
}

var getRulesCmd = &cobra.Command{
	Use:     "rules",
	Aliases: []string{"rule"},
	Short:   "List notification rules",
	RunE:    runGetRules,
}

func init() {
	getScansCmd.Flags().String("project", "", "Filter by project id")
	getScansCmd.Flags().Int("limit", 20, "Maximum number of scans")
	getScansCmd.Flags().Bool("active", false, "Only scans in a non-terminal status")

	getCmd.AddCommand(getScansCmd)
	getCmd.AddCommand(getRulesCmd)
}

func runGetScans(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx := context.Background()
	repo := postgres.NewScanRepository(e.db)

	activeOnly, _ := cmd.Flags().GetBool("active")
	projectFlag, _ := cmd.Flags().GetString("project")
	limit, _ := cmd.Flags().GetInt("limit")

	scans, err := listScans(ctx, repo, projectFlag, activeOnly, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROJECT\tSTATUS\tPROVIDER\tVULNS\tCREATED")
	for _, sc := range scans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			sc.ID, sc.ProjectID, sc.Status, orDash(sc.Provider),
			sc.VulnerabilityCount, sc.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func listScans(ctx context.Context, repo *postgres.ScanRepository, projectFlag string, activeOnly bool, limit int) ([]*scan.Scan, error) {
	switch {
	case activeOnly:
		return repo.ListActive(ctx)
	case projectFlag != "":
		projectID, err := shared.IDFromString(projectFlag)
		if err != nil {
			return nil, err
		}
		return repo.ListByProject(ctx, projectID, limit)
	default:
		return nil, fmt.Errorf("either --project or --active is required")
	}
}

func runGetRules(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	repo := postgres.NewRuleRepository(e.db)
	rules, err := repo.List(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tTRIGGER\tSCOPE\tACTIONS")
	for _, r := range rules {
		actions := ""
		for i, a := range r.Actions {
			if i > 0 {
				actions += ","
			}
			actions += string(a.Type)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			r.ID, r.Name, r.Enabled, r.TriggerType, r.Scope, orDash(actions))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
