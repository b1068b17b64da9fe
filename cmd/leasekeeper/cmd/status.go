package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"leasekeeper/internal/workload"
	"leasekeeper/pkg/api"
)

var outputFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds each workload's lease",
	Long: `Read the current owner of every configured workload's lease from the
store. "mine" marks leases held by an instance on this host.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireWorkloads(); err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := newStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		hostname, _ := os.Hostname()
		owners, err := collectOwners(ctx, newLeaseClient(store, cfg, log), cfg.Specs(), hostname)
		if err != nil {
			return err
		}
		return renderOwners(cmd.OutOrStdout(), owners, outputFormat)
	},
}

type ownerReader interface {
	ReadOwner(ctx context.Context, key string) (string, bool, error)
}

// collectOwners reads the lease of every spec. A token is "mine" when its
// host part matches hostname.
func collectOwners(ctx context.Context, leases ownerReader, specs []workload.Spec, hostname string) ([]api.LeaseOwner, error) {
	owners := make([]api.LeaseOwner, 0, len(specs))
	for _, spec := range specs {
		owner, found, err := leases.ReadOwner(ctx, spec.LeaseKey)
		if err != nil {
			return nil, err
		}

		lo := api.LeaseOwner{
			Workload: spec.ID,
			LeaseKey: spec.LeaseKey,
			Owner:    owner,
			Held:     found,
		}
		if found && hostname != "" {
			host, _, _ := strings.Cut(owner, ":")
			lo.Mine = host == hostname
		}
		owners = append(owners, lo)
	}
	return owners, nil
}

func renderOwners(w io.Writer, owners []api.LeaseOwner, format string) error {
	switch format {
	case "json":
		output, err := json.MarshalIndent(owners, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(output))
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(owners); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	case "table", "":
		table := tablewriter.NewWriter(w)
		table.Header("Workload", "Lease Key", "Owner", "Mine")
		for _, o := range owners {
			owner := o.Owner
			if !o.Held {
				owner = "-"
			}
			mine := ""
			if o.Mine {
				mine = "yes"
			}
			if err := table.Append(o.Workload, o.LeaseKey, owner, mine); err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}
		}
		return table.Render()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func init() {
	statusCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.AddCommand(statusCmd)
}
