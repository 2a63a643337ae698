package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"racereg/internal/bibrepair"
	"racereg/internal/cli"
	"racereg/internal/participants/events"
	"racereg/internal/participants/repository"
	"racereg/pkg/config"
)

const JobName = "bib-repair"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(setup).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func setup(ctx context.Context, ratePerSecond float64) (*cli.Env, error) {
	cfg := config.Load(JobName)
	cfg.SetMongo()

	if ratePerSecond == 0 {
		ratePerSecond = cfg.RepairRatePerSecond
	}

	var publisher bibrepair.Publisher
	closePublisher := func() {}
	if cfg.Kafka.Enabled {
		p, err := events.NewKafkaPublisher(cfg.Kafka, JobName, cfg.Log)
		if err != nil {
			cfg.GracefulShutdown()
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		publisher = p
		closePublisher = func() {
			if err := p.Close(); err != nil {
				cfg.Log.Error("Failed to close event publisher", "error", err)
			}
		}
	}

	repo := repository.NewMongoParticipantRepository(cfg)
	repairer := bibrepair.NewRepairer(repo, cfg.BibRanges, bibrepair.NewLimiter(ratePerSecond), publisher, cfg.Log)
	cfg.Log.Info("Bib repair ready", "rate_per_second", ratePerSecond, "bib_ranges", cfg.BibRanges.String())

	return &cli.Env{
		Repairer: repairer,
		Close: func() {
			closePublisher()
			cfg.GracefulShutdown()
		},
	}, nil
}
