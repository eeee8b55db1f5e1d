package bootstrap

import (
	"context"
	"fmt"

	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"

	"strategyvault/src/access"
	"strategyvault/src/connectors"
	"strategyvault/src/controller"
	"strategyvault/src/database"
	"strategyvault/src/ledger"
	"strategyvault/src/model"
	"strategyvault/src/oracle"
	"strategyvault/src/repository"
	"strategyvault/src/settlement"
)

type Config struct {
	OwnerAddress   string `envconfig:"OWNER_ADDRESS" default:"owner"`
	ProtocolFeeBps int64  `envconfig:"PROTOCOL_FEE_BPS" default:"0"`

	// static reads seeded in-memory rates, db reads the oracle_prices
	// table, feed streams from ORACLE_FEED_URL over websocket.
	OracleKind    string `envconfig:"ORACLE_KIND" default:"db"`
	OracleFeedURL string `envconfig:"ORACLE_FEED_URL"`

	// stub swaps against the in-process ledger; remote calls the venue API.
	VenueKind      string `envconfig:"VENUE_KIND" default:"stub"`
	VenueAPIKey    string `envconfig:"VENUE_API_KEY"`
	VenueAPISecret string `envconfig:"VENUE_API_SECRET"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// App is the wired object graph shared by the server and the executor
// loop. Both entry points build it once after the databases are up.
type App struct {
	Orders      *repository.OrderRepository
	GasStations *repository.GasStationRepository
	Keys        *repository.ExecutorKeyRepository
	Exceptions  *repository.ExceptionRepository

	Ledger ledger.AssetLedger
	Oracle oracle.PriceOracle
	Venue  connectors.SwapVenue
	Gate   *access.AccessControl

	Lifecycle *controller.Lifecycle
	Engine    *settlement.Engine
}

func Build(ctx context.Context) (*App, error) {
	config := GetConfig()

	app := &App{
		Orders:      repository.NewOrderRepository(),
		GasStations: repository.NewGasStationRepository(),
		Keys:        repository.NewExecutorKeyRepository(),
		Exceptions:  repository.NewExceptionRepository(),
		Ledger:      ledger.NewInMemoryLedger(),
	}

	switch config.OracleKind {
	case model.OracleKindStatic:
		app.Oracle = oracle.NewStaticOracle()
	case model.OracleKindFeed:
		if config.OracleFeedURL == "" {
			return nil, fmt.Errorf("oracle_feed_url not set")
		}
		feed := oracle.NewFeedOracle(config.OracleFeedURL)
		go feed.Run(ctx)
		app.Oracle = feed
	default:
		app.Oracle = oracle.NewDBOracle(database.MainDB)
	}

	if config.VenueKind == "remote" {
		app.Venue = connectors.NewVenueClient(config.VenueAPIKey, config.VenueAPISecret, "").
			WithLedger(app.Ledger)
	} else {
		app.Venue = connectors.NewStubVenue(app.Ledger, app.Oracle)
	}

	app.Gate = access.NewAccessControl(config.OwnerAddress)

	keys, err := app.Keys.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	app.Gate.Seed(keys)

	if config.ProtocolFeeBps > 0 {
		if err := app.Gate.SetProtocolFee(config.OwnerAddress, config.ProtocolFeeBps); err != nil {
			return nil, err
		}
	}

	app.Lifecycle = controller.NewLifecycle(app.Orders, app.GasStations, app.Exceptions, app.Ledger)
	app.Engine = settlement.NewEngine(
		app.Orders, app.GasStations, app.Ledger, app.Venue, app.Oracle, app.Gate, nil)

	logger.WithFields(map[string]interface{}{
		"owner":     config.OwnerAddress,
		"oracle":    config.OracleKind,
		"venue":     config.VenueKind,
		"fee_bps":   config.ProtocolFeeBps,
		"executors": len(app.Gate.Executors()),
	}).Info("Application graph wired")

	return app, nil
}
