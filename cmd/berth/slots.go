package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"charterhub/berth/pkg/cli"
	"charterhub/berth/pkg/pool"
	"charterhub/berth/pkg/server"
	"charterhub/berth/pkg/server/api"
	"charterhub/berth/pkg/storage"
	"charterhub/berth/pkg/storage/retention"
	"charterhub/berth/pkg/telemetry/logging"
)

// slotReport lists slots for display.
type slotReport []api.SlotResponse

func (r slotReport) Header() []string {
	return []string{"CAPTAIN", "DATE", "TIME", "CAPACITY", "BOOKED", "AVAILABLE"}
}

func (r slotReport) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, s := range r {
		rows = append(rows, []string{
			s.CaptainID,
			s.Date,
			s.Time,
			strconv.Itoa(s.Capacity),
			strconv.Itoa(s.BookedCount),
			strconv.Itoa(s.Available),
		})
	}
	return rows
}

func newSlotsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage slots directly in storage",
		Long: `Create, inspect and prune slots in the configured storage backend
without going through the HTTP API. The server may keep running; every
change goes through the same conditional writes it uses.`,
	}
	cmd.AddCommand(newSlotsSetCmd(root), newSlotsGetCmd(root), newSlotsPruneCmd(root))
	return cmd
}

func addSlotKeyFlags(cmd *cobra.Command, key *storage.SlotKey) {
	cmd.Flags().StringVar(&key.CaptainID, "captain", "", "captain ID")
	cmd.Flags().StringVar(&key.Date, "date", "", "slot date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&key.Time, "time", "", "slot time (HH:MM)")
	_ = cmd.MarkFlagRequired("captain")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
}

func newSlotsSetCmd(root *rootOptions) *cobra.Command {
	var key storage.SlotKey
	var capacity int

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create a slot or change its capacity",
		Long: `Create a slot or change its capacity. Lowering the capacity below the
number of units already booked is refused.

Example:
  berth slots set --captain cap-7 --date 2026-11-02 --time 09:00 --capacity 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := key.Validate(); err != nil {
				return cli.NewConfigError("slot", err.Error())
			}
			if capacity < 0 {
				return cli.NewConfigError("--capacity", "capacity must be non-negative")
			}

			var slot *storage.TimeSlot
			err := root.withSessions(cmd.Context(), func(ctx context.Context, exec storage.Executor) error {
				return exec.Execute(ctx, func(ctx context.Context, s storage.Session) error {
					var err error
					slot, err = s.UpsertSlot(ctx, key, capacity)
					return err
				})
			})
			if err != nil {
				return cli.NewCommandError("slots set", err)
			}
			return root.printSlots(cmd, slot)
		},
	}

	addSlotKeyFlags(cmd, &key)
	cmd.Flags().IntVar(&capacity, "capacity", 0, "bookable units")
	_ = cmd.MarkFlagRequired("capacity")
	return cmd
}

func newSlotsGetCmd(root *rootOptions) *cobra.Command {
	var key storage.SlotKey

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a slot and its remaining capacity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := key.Validate(); err != nil {
				return cli.NewConfigError("slot", err.Error())
			}

			var slot *storage.TimeSlot
			err := root.withSessions(cmd.Context(), func(ctx context.Context, exec storage.Executor) error {
				return exec.ExecuteWithRetry(ctx, func(ctx context.Context, s storage.Session) error {
					var err error
					slot, err = s.GetSlot(ctx, key)
					if errors.Is(err, storage.ErrSlotNotFound) {
						return pool.Permanent(err)
					}
					return err
				}, 0)
			})
			if err != nil {
				return cli.NewCommandError("slots get", err)
			}
			return root.printSlots(cmd, slot)
		},
	}

	addSlotKeyFlags(cmd, &key)
	return cmd
}

func newSlotsPruneCmd(root *rootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete past slots and their bookings now",
		Long: `Run the retention pruner once. Slots dated more than retention.days
in the past are deleted together with their bookings.

Example:
  berth slots prune --days 30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var deleted int
			var cutoff string
			err := root.withSessions(cmd.Context(), func(ctx context.Context, exec storage.Executor) error {
				cfg := root.loaded.Retention
				if cmd.Flags().Changed("days") {
					cfg.RetentionDays = days
				}
				pruner := retention.NewPruner(exec, &cfg)
				cutoff = pruner.Cutoff()

				var err error
				deleted, err = pruner.Prune(ctx)
				return err
			})
			if err != nil {
				return cli.NewCommandError("slots prune", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d slots dated before %s\n", deleted, cutoff)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "override retention.days")
	return cmd
}

// withSessions opens the configured storage backend behind a session pool
// for the duration of fn.
func (o *rootOptions) withSessions(ctx context.Context, fn func(ctx context.Context, exec storage.Executor) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	o.loaded = cfg

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}
	defer store.Close()

	poolCfg := cfg.Pool
	poolCfg.MinConnections = 0
	sessions, err := pool.New[storage.Session](ctx, poolCfg, store.Open,
		pool.WithName(server.StoragePoolName),
		pool.WithLogger(logging.Discard()),
	)
	if err != nil {
		return fmt.Errorf("failed to create session pool: %w", err)
	}
	defer sessions.Close()

	return fn(ctx, sessions)
}

func (o *rootOptions) printSlots(cmd *cobra.Command, slots ...*storage.TimeSlot) error {
	formatter, _, err := o.formatter()
	if err != nil {
		return err
	}
	report := make(slotReport, 0, len(slots))
	for _, s := range slots {
		report = append(report, api.NewSlotResponse(s))
	}
	return formatter.FormatTo(cmd.OutOrStdout(), report)
}
