package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/noah-isme/backend-estimator/internal/catalog"
	"github.com/noah-isme/backend-estimator/internal/config"
	"github.com/noah-isme/backend-estimator/internal/db"
	"github.com/noah-isme/backend-estimator/internal/obs"
)

func main() {
	tiersFlag := flag.String("tiers", "INSURANCE,HOMEOWNER", "comma separated pricing tiers to seed")
	migrateFirst := flag.Bool("migrate", true, "apply pending migrations before seeding")
	seedFile := flag.String("file", "", "YAML catalog to load instead of the built-in sample items")
	flag.Parse()

	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("tool", "seeder").Logger()
	if cfg.StorageDriver != config.StoragePostgres {
		logger.Fatal().Str("driver", cfg.StorageDriver).Msg("seeder requires STORAGE_DRIVER=postgres")
	}

	var tiers []catalog.Tier
	for _, raw := range strings.Split(*tiersFlag, ",") {
		tier, err := catalog.ParseTier(raw)
		if err != nil {
			logger.Fatal().Err(err).Str("tier", raw).Msg("parse tier")
		}
		tiers = append(tiers, tier)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *migrateFirst {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, "estimator-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	store, err := catalog.NewPostgresStore(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog store")
	}
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}

	var created, skipped int
	if *seedFile != "" {
		items, loadErr := catalog.LoadSeedFile(*seedFile, tiers...)
		if loadErr != nil {
			logger.Fatal().Err(loadErr).Str("file", *seedFile).Msg("load seed file")
		}
		created, skipped, err = catalog.SeedItems(ctx, svc, items)
	} else {
		created, skipped, err = catalog.SeedSamples(ctx, svc, tiers...)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("seed catalog")
	}
	logger.Info().Int("created", created).Int("skipped", skipped).Msg("seeding completed")
}
