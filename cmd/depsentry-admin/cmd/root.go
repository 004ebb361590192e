// Package cmd implements the depsentry-admin CLI commands. The CLI talks to
// the database, Redis and the task queue directly; it is an operator tool,
// not an API client.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/depsentry/api/internal/config"
	"github.com/depsentry/api/internal/infra/postgres"
	"github.com/depsentry/api/internal/infra/redis"
	"github.com/depsentry/api/pkg/logger"
)

var version string

var rootCmd = &cobra.Command{
	Use:   "depsentry-admin",
	Short: "DepSentry scan orchestration administration CLI",
	Long: `depsentry-admin is an operator CLI for the DepSentry scan
orchestration service.

It provides commands to inspect scans and notification rules, show cached
poll progress, and requeue polling for a stuck scan. Connection settings
come from the same environment variables the server uses.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("depsentry-admin", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(requeuePollCmd)
}

// env is the lazily opened connection set shared by commands.
type env struct {
	cfg   *config.Config
	db    *postgres.DB
	redis *redis.Client
	log   *logger.Logger
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log := logger.NewNop()

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &env{cfg: cfg, db: db, redis: redisClient, log: log}, nil
}

func (e *env) close() {
	e.redis.Close()
	e.db.Close()
}
