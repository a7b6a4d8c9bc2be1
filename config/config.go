package config

import (
	"errors"
	"fmt"
	"os"
	"renju/agent"
	"renju/game"
	"renju/metrics"
	"renju/searcher"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	LogLevel string `yaml:"log_level"`
	Size     int    `yaml:"board_size"`
	Search   Search `yaml:"search"`
	Match    Match  `yaml:"match"`
	Server   Server `yaml:"server"`
}

type Search struct {
	Simulations      int           `yaml:"simulations"`
	Duration         time.Duration `yaml:"duration"`
	Goroutines       int           `yaml:"goroutines"`
	CPuct            float64       `yaml:"c_puct"`
	VirtualLoss      float64       `yaml:"virtual_loss"`
	ExplorationMoves int           `yaml:"exploration_moves"`
	TreeReuse        bool          `yaml:"tree_reuse"`
	Seed             uint64        `yaml:"seed"`
	PriorFloor       float64       `yaml:"prior_floor"`
}

type Match struct {
	Name      string `yaml:"name"`
	Games     int    `yaml:"games"`
	Parallel  int    `yaml:"parallel"`
	MaxMoves  int    `yaml:"max_moves"`
	Opponent  string `yaml:"opponent"` // "greedy" or "mcts"
	OutputDir string `yaml:"output_dir"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Size:     game.DefaultSize,
		Search: Search{
			Simulations: searcher.DefaultSimulations,
			Goroutines:  1,
			CPuct:       searcher.DefaultCPuct,
			VirtualLoss: searcher.DefaultVirtualLoss,
			TreeReuse:   true,
			PriorFloor:  agent.DefaultPriorFloor,
		},
		Match: Match{
			Name:      "renju",
			Games:     10,
			Parallel:  1,
			Opponent:  "greedy",
			OutputDir: "experiments",
		},
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	config := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c Config) Validate() error {
	switch {
	case c.Size < game.FiveInRow:
		return fmt.Errorf("board size %d is smaller than %d: %w", c.Size, game.FiveInRow, ErrInvalid)
	case c.Search.Simulations < 0:
		return fmt.Errorf("negative simulations: %w", ErrInvalid)
	case c.Search.Simulations == 0 && c.Search.Duration <= 0:
		return fmt.Errorf("search needs simulations or a duration: %w", ErrInvalid)
	case c.Search.Goroutines < 1:
		return fmt.Errorf("goroutines must be positive: %w", ErrInvalid)
	case c.Search.CPuct <= 0:
		return fmt.Errorf("c_puct must be positive: %w", ErrInvalid)
	case c.Search.PriorFloor < 0 || c.Search.PriorFloor > 1:
		return fmt.Errorf("prior_floor %v outside [0, 1]: %w", c.Search.PriorFloor, ErrInvalid)
	case c.Match.Opponent != "greedy" && c.Match.Opponent != "mcts":
		return fmt.Errorf("unknown opponent %q: %w", c.Match.Opponent, ErrInvalid)
	}
	return nil
}

// Options turns the search section into controller options.
func (s Search) Options() []searcher.Option {
	options := []searcher.Option{
		searcher.WithSimulations(s.Simulations),
		searcher.WithGoroutines(s.Goroutines),
		searcher.WithCPuct(s.CPuct),
		searcher.WithVirtualLoss(s.VirtualLoss),
		searcher.WithExplorationMoves(s.ExplorationMoves),
		searcher.WithTreeReuse(s.TreeReuse),
	}
	if s.Duration > 0 {
		options = append(options, searcher.WithDuration(s.Duration))
	}
	if s.Seed != 0 {
		options = append(options, searcher.WithSeed(s.Seed))
	}
	return options
}

func (s Search) Evaluator() agent.HeuristicEvaluator {
	return agent.HeuristicEvaluator{Temperature: 1, PriorFloor: s.PriorFloor}
}

// AgentConfigs describes the two sides of a match: the configured search
// agent against the configured opponent.
func (c Config) AgentConfigs() [2]metrics.AgentConfig {
	mcts := metrics.AgentConfig{
		ID:          1,
		Kind:        "mcts",
		Goroutines:  c.Search.Goroutines,
		Simulations: c.Search.Simulations,
		Duration:    c.Search.Duration,
	}
	opponent := mcts
	opponent.ID = 2
	if c.Match.Opponent == "greedy" {
		opponent = metrics.AgentConfig{ID: 2, Kind: "greedy"}
	}
	return [2]metrics.AgentConfig{mcts, opponent}
}
