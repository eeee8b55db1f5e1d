package pricefeed

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Comma-separated BASE/QUOTE pairs to observe.
	Pairs      string        `envconfig:"PAIRS" default:"BTC/USDT,ETH/USDT"`
	PollPeriod time.Duration `envconfig:"POLL_PERIOD" default:"15s"`
	Source     string        `envconfig:"PRICE_SOURCE" default:"binance"`
	OneShot    bool          `envconfig:"ONE_SHOT" default:"false"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
