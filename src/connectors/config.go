package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	VenueBaseURL string        `envconfig:"VENUE_BASE_URL" default:"https://venue.example.com"`
	VenueTimeout time.Duration `envconfig:"VENUE_TIMEOUT" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
