package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"leasekeeper/internal/joblock"
	"leasekeeper/internal/lease"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run the configured job calls on a single host",
	Long: `Acquire the job lock, perform every configured call in order and
release the lock. If another instance holds the lock the run is skipped.

Calls that fail are reported but do not fail the command; only a lease
store failure does.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireJob(); err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := newStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		owner := lease.NewOwnerToken()
		log = log.With("owner", owner)

		calls := make([]joblock.Call, 0, len(cfg.Job.Calls))
		for _, c := range cfg.Job.Calls {
			calls = append(calls, joblock.Call{Name: c.Name, URL: c.URL, Method: c.Method})
		}

		runner := joblock.NewRunner(
			newLeaseClient(store, cfg, log),
			joblock.NewHTTPCaller(seconds(cfg.Job.TimeoutSeconds), cfg.Job.CallsPerSecond),
			cfg.Job.LockKey,
			owner,
			seconds(cfg.Job.TTLSeconds),
			log,
		)

		report, err := runner.Run(ctx, calls)
		if !report.Acquired {
			if err == nil {
				cmd.Printf("Job lock %s is held by another instance, skipped\n", cfg.Job.LockKey)
			}
			return err
		}

		for _, res := range report.Results {
			if res.OK() {
				cmd.Printf("✓ %s (%d, %s)\n", res.Name, res.StatusCode, res.Duration.Round(time.Millisecond))
				continue
			}
			if res.Err != nil {
				cmd.Printf("✗ %s: %v\n", res.Name, res.Err)
			} else {
				cmd.Printf("✗ %s (%d)\n", res.Name, res.StatusCode)
			}
		}
		cmd.Printf("\n%d calls, %d failed\n", len(report.Results), report.Failed())
		return err
	},
}

func init() {
	rootCmd.AddCommand(onceCmd)
}
