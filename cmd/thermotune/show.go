package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/cycle"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/learning"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/persist"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/zone"
)

type showReport struct {
	Status    zone.Status            `json:"status" yaml:"status"`
	SavedAt   time.Time              `json:"saved_at" yaml:"saved_at"`
	Snapshots []learning.PidSnapshot `json:"pid_history" yaml:"pid_history"`
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Zone.ID = args[0]
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg.Persistence)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.Load(ctx, cfg.Zone.ID); errors.Is(err, persist.ErrNotFound) {
		return fmt.Errorf("no saved state for zone %q", cfg.Zone.ID)
	}

	mgr := persist.NewManager(store, persist.WithLogger(logger))
	doc, err := mgr.Load(ctx, cfg.Zone.ID)
	if err != nil {
		return err
	}
	eng := zone.NewEngine(cfg.ZoneConfig(), cycle.ActuatorFunc(func() bool { return false }),
		zone.WithLogger(logger))
	eng.Apply(doc)

	return printOut(cmd.OutOrStdout(), asJSON, showReport{
		Status:    eng.Status(time.Now()),
		SavedAt:   doc.SavedAt,
		Snapshots: doc.Learner.PidHistory,
	})
}

func runZones(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := openStore(ctx, cfg.Persistence)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), k)
	}
	return nil
}
