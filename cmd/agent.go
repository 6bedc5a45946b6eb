package cmd

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matelock-backend/internal/config"
	"matelock-backend/internal/enforcement"
	"matelock-backend/internal/repository"
	"matelock-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// RunAgent mirrors one user's agreed configuration and pauses onto a local
// shield. Without an OS shield on the host it logs what would be blocked.
func RunAgent(args []string) {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	userID := fs.String("user", "", "user id to enforce for")
	authorized := fs.Bool("authorized", true, "whether the shield is authorized")
	manual := fs.Bool("manual-block", false, "block everything regardless of schedule")
	fs.Parse(args)

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log.Level)

	if *userID == "" {
		log.Fatal().Msg("-user is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open document store")
	}
	defer closeStore()

	userRepo := repository.NewUserRepository(store)
	pairRepo := repository.NewPairRepository(store)
	setupRepo := repository.NewSetupRepository(store)
	breakRepo := repository.NewBreakRepository(store)
	pairService := services.NewPairService(store, pairRepo, userRepo, setupRepo, nil)

	reflector := enforcement.NewReflector(
		enforcement.NewLogShield(*authorized),
		enforcement.WithTick(cfg.Rules.EnforcementTick()),
		enforcement.WithPausePoll(cfg.Rules.PausePoll()),
		enforcement.OnDecision(func(d enforcement.Decision) {
			log.Debug().Bool("active", d.Active).Str("reason", d.Reason).Msg("Enforcement evaluated")
		}),
	)
	go func() {
		if err := reflector.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Reflector stopped")
		}
	}()
	if err := reflector.SetManualBlock(ctx, *manual); err != nil {
		log.Fatal().Err(err).Msg("Failed to set manual block")
	}

	// SIGHUP plays the part of the app returning to the foreground.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			reflector.Foreground()
		}
	}()

	for ctx.Err() == nil {
		pair, _, err := pairService.FinalizedPair(ctx, *userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", *userID).Msg("Waiting for a finalized pair")
			sleep(ctx, 30*time.Second)
			continue
		}

		log.Info().Str("user_id", *userID).Str("pair_id", pair.ID).Msg("Following pair")
		err = enforcement.Follow(ctx, reflector, setupRepo, breakRepo, pair, *userID)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Follow ended, resubscribing")
			sleep(ctx, time.Second)
		}
	}

	log.Info().Msg("Agent exited")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
