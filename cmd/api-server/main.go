package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"comictracker/internal/app"
	"comictracker/internal/jobs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api-server:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "TOML config file (defaults to $COMICTRACKER_CONFIG)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	a, err := app.Open(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.Logger

	httpSrv := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	if a.Config.Worker.Enabled {
		unlock, err := jobs.Lock(a.Config.Worker.LockPath)
		switch {
		case errors.Is(err, jobs.ErrWorkerRunning):
			// a standalone worker already consumes this data dir
			log.Warn("job worker disabled", "reason", err.Error(), "lock_path", a.Config.Worker.LockPath)
		case err != nil:
			return err
		default:
			defer func() { _ = unlock() }()
			worker := a.NewWorker()
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := worker.Run(ctx); err != nil {
					errCh <- err
				}
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("http api listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-errCh:
		log.Error("server error", "error", runErr)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}

	wg.Wait()
	log.Info("servers stopped")
	return runErr
}
