package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Address the loop settles under; must be an authorized executor.
	ExecutorAddress string        `envconfig:"EXECUTOR_ADDRESS"`
	BatchSize       int           `envconfig:"BATCH_SIZE" default:"10"`
	LoopPeriod      time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
