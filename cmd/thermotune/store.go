package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/config"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/cycle"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/metrics"
	"github.com/afewyards/ha-adaptive-thermostat-sub000/pkg/persist"
)

func openStore(ctx context.Context, cfg config.PersistenceConfig) (persist.Store, error) {
	switch cfg.Store {
	case config.StoreBadger:
		return persist.NewBadgerStore(persist.BadgerOptions{
			DataDir:    cfg.DataDir,
			SyncWrites: cfg.SyncWrites,
		})
	case config.StoreRedis:
		return persist.NewRedisStore(ctx, persist.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case config.StoreMemory:
		return persist.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func newManager(store persist.Store, cfg config.PersistenceConfig, sched cycle.Scheduler, logger *slog.Logger) *persist.Manager {
	return persist.NewManager(store,
		persist.WithSaveDelay(cfg.SaveDelay),
		persist.WithScheduler(sched),
		persist.WithLogger(logger),
		persist.WithSaveHook(func(zone string, err error) {
			metrics.StateSaves.WithLabelValues(zone, metrics.Outcome(err)).Inc()
		}))
}

func printOut(w io.Writer, asJSON bool, v any) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
