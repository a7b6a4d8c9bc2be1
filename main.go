package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"renju/config"
	"renju/engine"
	"renju/metrics"
	"renju/searcher"
	"renju/server"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	mode := flag.String("mode", "match", "What to run: match or serve")
	games := flag.Int("games", 0, "Number of games in a match, overrides the config")
	simulations := flag.Int("simulations", -1, "Simulations per move, overrides the config")
	duration := flag.Duration("duration", 0, "Search time per move, overrides the config")
	goroutines := flag.Int("goroutines", 0, "Goroutines per search, overrides the config")
	addr := flag.String("addr", "", "Listen address in serve mode, overrides the config")
	flag.Parse()

	setupLogging()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
	}
	if *games > 0 {
		cfg.Match.Games = *games
	}
	if *simulations >= 0 {
		cfg.Search.Simulations = *simulations
	}
	if *duration > 0 {
		cfg.Search.Duration = *duration
	}
	if *goroutines > 0 {
		cfg.Search.Goroutines = *goroutines
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	evaluator := cfg.Search.Evaluator()
	switch *mode {
	case "match":
		runMatch(ctx, cfg, evaluator)
	case "serve":
		mcts := searcher.NewMCTS(evaluator, append(cfg.Search.Options(), searcher.WithMetrics())...)
		if err := server.New(mcts, cfg.Size).ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout); err != nil {
			log.Fatal().Err(err).Msg("move service stopped")
		}
	default:
		log.Fatal().Msgf("unknown mode %q", *mode)
	}
}

// setupLogging switches the global logger to console output at info level
// until the configured level is known.
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func runMatch(ctx context.Context, cfg config.Config, evaluator searcher.Evaluator) {
	match := engine.Match{
		Name:      cfg.Match.Name,
		Agents:    cfg.AgentConfigs(),
		Games:     cfg.Match.Games,
		Size:      cfg.Size,
		MaxMoves:  cfg.Match.MaxMoves,
		Parallel:  cfg.Match.Parallel,
		Seed:      cfg.Search.Seed,
		Options:   cfg.Search.Options(),
		Evaluator: evaluator,
	}

	writer, err := metrics.NewWriter(cfg.Match.OutputDir, cfg.Match.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create match writer")
	}
	summary, err := match.Run(ctx, writer)
	if err != nil {
		log.Fatal().Err(err).Msg("match failed")
	}
	log.Info().
		Int("mcts_wins", summary.Wins[0]).
		Int("opponent_wins", summary.Wins[1]).
		Int("draws", summary.Draws).
		Msg("match finished")
}
