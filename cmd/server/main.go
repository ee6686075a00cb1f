package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Tandem/internal/adapters/http"
	"github.com/dkeye/Tandem/internal/adapters/relay"
	"github.com/dkeye/Tandem/internal/adapters/store"
	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/app/orch"
	"github.com/dkeye/Tandem/internal/app/sfu"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/dkeye/Tandem/internal/protocol"
)

var (
	envFlag      string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:          "tandem",
	Short:        "Anonymous pairing and room membership service",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket server and the sweeper",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reconciliation pass and exit",
	RunE:  runSweep,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", "", "config env: dev or prod (default CONFIG_ENV, then dev)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "overrides log_level from config")
	rootCmd.AddCommand(serveCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("exit")
		os.Exit(1)
	}
}

// setup loads .env and config and configures the global logger.
func setup() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(envFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if !cfg.Dev() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("instance", cfg.InstanceID).Logger()
	}
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return cfg, nil
}

type services struct {
	store   *store.Store
	rooms   *store.CachedDirectory
	matches *app.Matchmaker
	members *app.Membership
	sweeper *app.Sweeper
}

func newServices(ctx context.Context, cfg *config.Config) (*services, error) {
	st, err := store.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	rooms, err := store.NewCachedDirectory(st, cfg.RoomCacheTTL)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &services{
		store:   st,
		rooms:   rooms,
		matches: app.NewMatchmaker(st, rooms),
		members: app.NewMembership(st, rooms),
		sweeper: app.NewSweeper(st, rooms, st, app.SweepConfig{
			RoomGrace:         cfg.Sweeper.RoomGrace,
			RoomMaxAge:        cfg.Sweeper.RoomMaxAge,
			MatchMaxAge:       cfg.Sweeper.MatchMaxAge,
			SkipActiveMatches: !cfg.Dev(),
		}),
	}, nil
}

func (s *services) Close() {
	s.rooms.Close()
	_ = s.store.Close()
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	svc, err := newServices(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	_, err = svc.sweeper.Sweep(cmd.Context())
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	o := &orch.Orchestrator{
		Instance: cfg.InstanceID,
		Registry: app.NewRegistry(),
		Matches:  svc.matches,
		Members:  svc.members,
		Tokens:   sfu.NewTokenIssuer(cfg.Sfu.APIKey, cfg.Sfu.APISecret, cfg.Sfu.TokenTTL),
		Policy:   app.SimplePolicy{Droppable: map[string]bool{protocol.TypeStatsUpdated: true, protocol.TypePong: true}},
	}

	if cfg.Nats.URL != "" {
		nr, err := relay.Connect(cfg.Nats.URL, cfg.Nats.Subject, "tandem-"+cfg.InstanceID)
		if err != nil {
			return err
		}
		defer nr.Close()
		if err := nr.Subscribe(cfg.InstanceID, o.Deliver); err != nil {
			return err
		}
		o.Relay = nr
	} else {
		log.Info().Msg("nats url empty, running single instance")
	}

	if err := svc.sweeper.Start(ctx, cfg.Sweeper.Interval); err != nil {
		return err
	}
	defer svc.sweeper.Stop()

	handler, ws := router.SetupRouter(ctx, cfg, o, svc.store)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("instance", cfg.InstanceID).Msg("Tandem server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		// hijacked websockets outlive Shutdown; their queue cleanup needs the store
		if err := ws.Drain(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("websocket cleanup did not finish")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
