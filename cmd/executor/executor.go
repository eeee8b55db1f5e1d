package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"strategyvault/src/bootstrap"
	"strategyvault/src/database"
	"strategyvault/src/executors"
)

type Executor struct {
}

func (t *Executor) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to read-only database")
		return err
	}

	app, err := bootstrap.Build(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to wire application")
		return err
	}

	logrus.Info("Starting settlement executor loop")

	if err := executors.StartLoop(ctx, app.Orders, app.Engine); err != nil {
		logrus.WithError(err).Error("Failed to start settlement loop")
		return err
	}

	return nil
}
