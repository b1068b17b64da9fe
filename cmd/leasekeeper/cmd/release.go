package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"leasekeeper/internal/config"
)

var releaseOwner string

var releaseCmd = &cobra.Command{
	Use:   "release [workload_id]",
	Short: "Release a workload's lease on behalf of an owner",
	Long: `Delete a workload's lease if, and only if, it is held by the given owner
token. Use it to hand over a lease held by an instance that crashed without
releasing it, instead of waiting for the lease to expire.

The token is shown by "leasekeeper status".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workloadID := args[0]

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		key := ""
		for _, spec := range cfg.Specs() {
			if spec.ID == workloadID {
				key = spec.LeaseKey
				break
			}
		}
		if key == "" {
			return fmt.Errorf("%w: workload %s is not configured", config.ErrInvalid, workloadID)
		}

		ctx := cmd.Context()
		store, err := newStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		leases := newLeaseClient(store, cfg, log)

		if err := leases.ReleaseIfOwned(ctx, key, releaseOwner); err != nil {
			return err
		}

		owner, found, err := leases.ReadOwner(ctx, key)
		if err != nil {
			return err
		}
		switch {
		case !found:
			cmd.Printf("Lease %s is free\n", key)
		case owner == releaseOwner:
			return fmt.Errorf("lease %s is still held by %s", key, owner)
		default:
			cmd.Printf("Lease %s is held by %s, not released\n", key, owner)
		}
		return nil
	},
}

func init() {
	releaseCmd.Flags().StringVar(&releaseOwner, "owner", "", "Owner token currently holding the lease")
	releaseCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(releaseCmd)
}
