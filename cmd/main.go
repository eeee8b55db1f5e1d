package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"strategyvault/cmd/executor"
	"strategyvault/cmd/keys"
	"strategyvault/cmd/pricefeed"
	"strategyvault/src/database"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Strategyvault CMD"
	app.Usage = "The strategyvault command line interface"

	app.Commands = []cli.Command{
		executorCMD,
		pricefeedCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run Executor",
		Action:      executorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run Executor CMD`,
	}
	pricefeedCMD = cli.Command{
		Name:        "pricefeed",
		Usage:       "run Price feed",
		Action:      pricefeedAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run Price feed CMD`,
	}
	keysCMD = cli.Command{
		Name:        "keys",
		Usage:       "run Key management console",
		Action:      keysAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run Key management CMD`,
	}
)

func executorAction(_ *cli.Context) error {

	logrus.Info("Starting executor CMD")
	logrus.WithField("cmd", "executor")

	settlementExecutor := &executor.Executor{}
	err := settlementExecutor.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// pricefeedAction polls spot tickers into the oracle price table.
func pricefeedAction(_ *cli.Context) error {

	logrus.Info("Starting price feed CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	feed := &pricefeed.PriceFeed{
		Log: logrus.WithField("cmd", "pricefeed"),
		DB:  database.MainDB,
	}

	err := feed.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting price feed cmd")
		return err
	}

	return nil
}

func keysAction(_ *cli.Context) error {

	logrus.Info("Starting key management CMD")
	logrus.WithField("cmd", "keys")

	console := &keys.CLI{}
	err := console.Run()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
