package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"strategyvault/src/access"
	"strategyvault/src/controller"
	"strategyvault/src/handler"
	"strategyvault/src/repository"
	"strategyvault/src/settlement"
)

// Dependencies carries the wired collaborators the routes close over.
type Dependencies struct {
	Orders      *repository.OrderRepository
	GasStations *repository.GasStationRepository
	Keys        *repository.ExecutorKeyRepository
	Lifecycle   *controller.Lifecycle
	Engine      *settlement.Engine
	Gate        *access.AccessControl
}

func StartServer(port string, deps Dependencies) {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	// Authenticated API
	r.Group(func(r chi.Router) {
		r.Use(handler.APIKeyAuth(deps.Keys))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handler.CreateOrderHandler(deps.Lifecycle))
			r.Get("/", handler.SearchOrdersHandler(deps.Orders))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handler.GetOrderHandler(deps.Orders))
				r.Get("/can-execute", handler.CanExecuteHandler(deps.Engine))
				r.Get("/vesting", handler.VestingInfoHandler(deps.Orders))
				r.Get("/grid", handler.GridInfoHandler(deps.Orders))
				r.Get("/executions", handler.ExecutionsHandler(deps.Orders))

				r.Post("/execute", handler.ExecuteOrderHandler(deps.Orders, deps.Engine))
				r.Post("/claim", handler.ClaimVestedHandler(deps.Engine))
				r.Post("/pause", handler.PauseOrderHandler(deps.Lifecycle))
				r.Post("/resume", handler.ResumeOrderHandler(deps.Lifecycle))
				r.Post("/cancel", handler.CancelOrderHandler(deps.Lifecycle))
			})
		})

		r.Route("/gas-stations", func(r chi.Router) {
			r.Post("/", handler.CreateGasStationHandler(deps.Lifecycle))
			r.Get("/{id}", handler.GetGasStationHandler(deps.GasStations))
			r.Post("/{id}/fulfil", handler.FulfilGasStationHandler(deps.Engine))
		})

		r.Post("/settlements/batch", handler.BatchSettleHandler(deps.Engine))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/executors", handler.ListExecutorsHandler(deps.Gate))
			r.Post("/executors", handler.AddExecutorHandler(deps.Gate, deps.Keys))
			r.Delete("/executors/{address}", handler.RemoveExecutorHandler(deps.Gate, deps.Keys))
			r.Post("/fee", handler.SetProtocolFeeHandler(deps.Gate))
			r.Post("/oracle", handler.SetOracleHandler(deps.Gate))
		})
	})

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
