package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"strategyvault/src/model"
)

// PriceFeed polls spot tickers and records them as oracle observations.
// The database-backed oracle always reads the latest row per pair, so the
// feed only ever appends.
type PriceFeed struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (p *PriceFeed) Start() error {
	p.Config = GetConfig()

	p.exchange = p.newBinanceInstance()

	pairs, err := p.parsePairs()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if p.Config.OneShot {
		return p.observeAll(pairs)
	}

	ticker := time.NewTicker(p.Config.PollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Log.Info("price feed stopped")
			return nil

		case <-ticker.C:
			if err := p.observeAll(pairs); err != nil {
				p.Log.WithError(err).Error("observation sweep failed")
			}
		}
	}
}

func (*PriceFeed) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

type assetPair struct {
	Base  string
	Quote string
}

func (p *PriceFeed) parsePairs() ([]assetPair, error) {
	var pairs []assetPair
	for _, raw := range strings.Split(p.Config.Pairs, ",") {
		parts := strings.Split(strings.TrimSpace(raw), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed pair %q, want BASE/QUOTE", raw)
		}
		pairs = append(pairs, assetPair{
			Base:  strings.ToUpper(parts[0]),
			Quote: strings.ToUpper(parts[1]),
		})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no pairs configured")
	}
	return pairs, nil
}

func (p *PriceFeed) observeAll(pairs []assetPair) error {
	for _, pair := range pairs {
		if err := p.observe(pair); err != nil {
			p.Log.WithError(err).WithFields(logger.Fields{
				"base":  pair.Base,
				"quote": pair.Quote,
			}).Error("failed to observe pair")
			return err
		}
	}
	return nil
}

func (p *PriceFeed) observe(pair assetPair) error {
	currencyPair := goex.NewCurrencyPair(
		goex.Currency{Symbol: pair.Base},
		goex.Currency{Symbol: pair.Quote},
	)

	ticker, err := p.exchange.GetTicker(currencyPair)
	if err != nil {
		return err
	}

	observation := &model.OraclePrice{
		BaseAsset:  pair.Base,
		QuoteAsset: pair.Quote,
		Rate:       decimal.NewFromFloat(ticker.Last).Truncate(0),
		Source:     p.Config.Source,
		ObservedAt: time.Now().UTC(),
	}

	if err := p.DB.Create(observation).Error; err != nil {
		p.Log.WithError(err).Error("observe, Create, ")
		return err
	}

	p.Log.WithFields(logger.Fields{
		"Base":  pair.Base,
		"Quote": pair.Quote,
		"Rate":  observation.Rate.String(),
	}).Info("Oracle price recorded")

	return nil
}
