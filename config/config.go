// Package config loads advisor settings from an optional config file, a .env
// file and BRAWLDRAFT_* environment variables, in increasing precedence over
// the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/brensch/brawldraft/heuristics"
	"github.com/brensch/brawldraft/mcts"
	"github.com/brensch/brawldraft/stats"
)

const EnvPrefix = "BRAWLDRAFT"

type Config struct {
	Stats   StatsConfig        `mapstructure:"stats"`
	Search  SearchConfig       `mapstructure:"search"`
	Weights heuristics.Weights `mapstructure:"weights"`
	Paths   PathsConfig        `mapstructure:"paths"`
	Server  ServerConfig       `mapstructure:"server"`
	Log     LogConfig          `mapstructure:"log"`
}

type StatsConfig struct {
	SmoothingK           float64 `mapstructure:"smoothing_k" validate:"gte=0"`
	MinRank              int     `mapstructure:"min_rank" validate:"gte=0"`
	MaxRank              int     `mapstructure:"max_rank" validate:"gtefield=MinRank"`
	RankWeightDivisor    float64 `mapstructure:"rank_weight_divisor" validate:"gt=0"`
	LowPickRateThreshold float64 `mapstructure:"low_pick_rate_threshold" validate:"gte=0"`
	LowConfidenceWinRate float64 `mapstructure:"low_confidence_win_rate" validate:"gte=0,lte=1"`
}

type SearchConfig struct {
	// TimeLimit is in seconds.
	TimeLimit      float64       `mapstructure:"time_limit" validate:"gt=0"`
	Exploration    float64       `mapstructure:"exploration" validate:"gte=0"`
	ResultCount    int           `mapstructure:"result_count" validate:"gt=0"`
	Workers        int           `mapstructure:"workers" validate:"gte=0"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	ReportInterval time.Duration `mapstructure:"report_interval" validate:"gt=0"`
}

type PathsConfig struct {
	MatchLog string `mapstructure:"match_log"`
	Matches  string `mapstructure:"matches"`
	Cache    string `mapstructure:"cache" validate:"required"`
	Roster   string `mapstructure:"roster"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

func Default() Config {
	p := stats.DefaultParams()
	return Config{
		Stats: StatsConfig{
			SmoothingK:           p.SmoothingK,
			MinRank:              p.MinRank,
			MaxRank:              p.MaxRank,
			RankWeightDivisor:    p.Divisor,
			LowPickRateThreshold: p.LowPickRateThreshold,
			LowConfidenceWinRate: p.LowConfidenceTarget,
		},
		Search: SearchConfig{
			TimeLimit:      7.0,
			Exploration:    1.414,
			ResultCount:    10,
			Workers:        runtime.NumCPU(),
			PollInterval:   200 * time.Millisecond,
			ReportInterval: time.Second,
		},
		Weights: heuristics.DefaultWeights(),
		Paths: PathsConfig{
			MatchLog: "data/battles.jsonl",
			Matches:  "data/matches",
			Cache:    "data/stats_cache.parquet",
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// settings flattens cfg into viper keys.
func settings(cfg Config) map[string]any {
	return map[string]any{
		"stats.smoothing_k":             cfg.Stats.SmoothingK,
		"stats.min_rank":                cfg.Stats.MinRank,
		"stats.max_rank":                cfg.Stats.MaxRank,
		"stats.rank_weight_divisor":     cfg.Stats.RankWeightDivisor,
		"stats.low_pick_rate_threshold": cfg.Stats.LowPickRateThreshold,
		"stats.low_confidence_win_rate": cfg.Stats.LowConfidenceWinRate,
		"search.time_limit":             cfg.Search.TimeLimit,
		"search.exploration":            cfg.Search.Exploration,
		"search.result_count":           cfg.Search.ResultCount,
		"search.workers":                cfg.Search.Workers,
		"search.poll_interval":          cfg.Search.PollInterval.String(),
		"search.report_interval":        cfg.Search.ReportInterval.String(),
		"weights.win_rate":              cfg.Weights.WinRate,
		"weights.synergy":               cfg.Weights.Synergy,
		"weights.counter":               cfg.Weights.Counter,
		"weights.pick_rate":             cfg.Weights.PickRate,
		"paths.match_log":               cfg.Paths.MatchLog,
		"paths.matches":                 cfg.Paths.Matches,
		"paths.cache":                   cfg.Paths.Cache,
		"paths.roster":                  cfg.Paths.Roster,
		"server.addr":                   cfg.Server.Addr,
		"log.level":                     cfg.Log.Level,
		"log.format":                    cfg.Log.Format,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range settings(Default()) {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadEnv loads the given .env files (".env" when none are named). Missing
// files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path. The format follows the file extension.
func Save(path string, cfg Config) error {
	v := viper.New()
	for k, val := range settings(cfg) {
		v.Set(k, val)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) StatsParams() stats.Params {
	return stats.Params{
		Weighting: stats.Weighting{
			MinRank: c.Stats.MinRank,
			MaxRank: c.Stats.MaxRank,
			Divisor: c.Stats.RankWeightDivisor,
		},
		SmoothingK:           c.Stats.SmoothingK,
		LowPickRateThreshold: c.Stats.LowPickRateThreshold,
		LowConfidenceTarget:  c.Stats.LowConfidenceWinRate,
	}
}

func (c Config) MCTS() mcts.Config {
	return mcts.Config{
		Workers:        c.Search.Workers,
		Exploration:    c.Search.Exploration,
		TimeBudget:     time.Duration(c.Search.TimeLimit * float64(time.Second)),
		PollInterval:   c.Search.PollInterval,
		ReportInterval: c.Search.ReportInterval,
		ResultCount:    c.Search.ResultCount,
	}
}
