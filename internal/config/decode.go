package config

import (
	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	RPCURL   string
	In       string
	Out      string
	Errors   string
	LogLevel string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v := newViper()

	v.SetDefault("out", "./data/typed_events.jsonl")
	v.SetDefault("errors", "./data/decode_errors.jsonl")
	v.SetDefault("log-level", "info")

	if err := bindAndRead(v, cfgFile, flags); err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		RPCURL:   v.GetString("rpc"),
		In:       v.GetString("in"),
		Out:      v.GetString("out"),
		Errors:   v.GetString("errors"),
		LogLevel: v.GetString("log-level"),
	}

	return cfg, nil
}
