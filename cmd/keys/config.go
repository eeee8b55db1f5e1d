package keys

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BcryptCost int `envconfig:"BCRYPT_COST" default:"10"`
	KeyBytes   int `envconfig:"KEY_BYTES" default:"32"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
