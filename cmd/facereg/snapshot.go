package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/facereg/internal/domain"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect the identity snapshot",
}

var snapshotStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print tenant and identity counts of the configured snapshot",
	RunE:  runSnapshotStats,
}

func init() {
	snapshotCmd.AddCommand(snapshotStatsCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotStats(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, closeStore, err := openSnapshotStore(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer closeStore()

	data, err := store.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "No snapshot yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	tenants := make([]string, 0, len(data))
	for t := range data {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tenants:    %d\n", len(data))
	fmt.Fprintf(out, "Identities: %d\n", data.Identities())
	for _, t := range tenants {
		fmt.Fprintf(out, "  %-40s %d\n", t, len(data[t]))
	}
	return nil
}
