package config

import (
	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	Input       string
	PGDSN       string
	PoolAddress string
	ChainID     uint64
	BatchSize   int
	StateFile   string
	LogLevel    string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v := newViper()

	v.SetDefault("batch-size", 1000)
	v.SetDefault("log-level", "info")

	if err := bindAndRead(v, cfgFile, flags); err != nil {
		return ReplayConfig{}, err
	}

	cfg := ReplayConfig{
		Input:       v.GetString("in"),
		PGDSN:       v.GetString("pg-dsn"),
		PoolAddress: v.GetString("pool"),
		ChainID:     v.GetUint64("chain-id"),
		BatchSize:   v.GetInt("batch-size"),
		StateFile:   v.GetString("state-file"),
		LogLevel:    v.GetString("log-level"),
	}

	return cfg, nil
}
