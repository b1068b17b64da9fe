package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leasekeeper/internal/config"
	"leasekeeper/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "leasekeeper",
	Short: "leasekeeper runs each workload on exactly one host",
	Long: `leasekeeper supervises long-running workloads across a fleet of hosts.

Every host runs the same leasekeeper process with the same configuration.
For each workload the instances compete for a lease in a shared store
(Redis or PostgreSQL). The holder starts the workload and keeps renewing
the lease; everyone else keeps it stopped. When the holder dies its lease
expires and another instance takes over.

Common workflows:

  Supervise the configured workloads:
    leasekeeper run --config /etc/leasekeeper.yaml

  See who holds each lease:
    leasekeeper status -o table

  Run the configured job calls on one host only:
    leasekeeper once

  Hand over a lease held by a crashed instance:
    leasekeeper release cronjobs --owner host-a:4242:1a2b3c4d

Configuration:
  Settings come from flags, LEASEKEEPER_* environment variables and a YAML
  file, in that order of precedence, e.g.
    LEASEKEEPER_STORE_REDIS_ADDR   Redis address (default: localhost:6379)
    LEASEKEEPER_WORKLOADS          Workloads as id=process pairs`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return cfg, logger.New(level), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./leasekeeper.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}
