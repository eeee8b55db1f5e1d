package controller

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Slippage tolerance applied when a creation request leaves it unset.
	DefaultSlippageBps int64 `envconfig:"DEFAULT_SLIPPAGE_BPS" default:"50"`

	ServiceName string `envconfig:"SERVICE_NAME" default:"strategyvault"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
