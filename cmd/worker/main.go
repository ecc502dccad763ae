package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"comictracker/internal/app"
	"comictracker/internal/jobs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "TOML config file (defaults to $COMICTRACKER_CONFIG)")
	once := flag.Bool("once", false, "process at most one pending job and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	unlock, err := jobs.Lock(a.Config.Worker.LockPath)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	worker := a.NewWorker()
	if *once {
		job, err := worker.RunNext(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			a.Logger.Info("no pending jobs")
			return nil
		}
		a.Logger.Info("job processed", "job_id", job.ID, "status", job.Status)
		return nil
	}
	return worker.Run(ctx)
}
