package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"strategyvault/src/bootstrap"
	"strategyvault/src/database"
	"strategyvault/src/server"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel // fallback seguro
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	app, err := bootstrap.Build(context.Background())
	if err != nil {
		logger.WithError(err).Fatal("Failed to wire application")
	}

	port := PORT
	if port == "" {
		port = server.GetConfig().Port
	}

	server.StartServer(port, server.Dependencies{
		Orders:      app.Orders,
		GasStations: app.GasStations,
		Keys:        app.Keys,
		Lifecycle:   app.Lifecycle,
		Engine:      app.Engine,
		Gate:        app.Gate,
	})
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
