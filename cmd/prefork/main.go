package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prefork/internal/api"
	"prefork/internal/config"
	"prefork/internal/supervisor"
	"prefork/internal/worker"
)

func main() {
	host := flag.String("host", "", "Bind host (overrides PREFORK_HOST)")
	port := flag.Int("port", 0, "Bind port (overrides PREFORK_PORT)")
	workers := flag.Int("workers", 0, "Worker process count (overrides PREFORK_WORKERS)")
	appName := flag.String("app", "", "Application entrypoint to load (overrides PREFORK_APP)")
	admin := flag.String("admin", "", "Admin API listen address, empty disables it")
	configPath := flag.String("config", "", "Path to YAML policy file")
	workerMode := flag.Bool("worker", false, "Run as a worker process (spawned by the supervisor)")
	flag.Parse()

	if *workerMode {
		os.Exit(worker.Run(context.Background(), worker.ConfigFromEnv()))
	}

	cfg := config.FromEnv()

	if *configPath != "" {
		fc, err := config.LoadFile(*configPath)
		if err != nil {
			log.Printf("Warning: could not load config from %s: %v", *configPath, err)
		} else {
			fc.Apply(&cfg)
		}
	}

	// Explicit flags win over both env and file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "workers":
			cfg.Workers = *workers
		case "app":
			cfg.App = *appName
		case "admin":
			cfg.AdminAddress = *admin
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	sup := supervisor.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	var adminSrv *http.Server
	if cfg.AdminAddress != "" {
		adminSrv = &http.Server{
			Addr:         cfg.AdminAddress,
			Handler:      api.NewRouter(sup),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Printf("Admin API listening on %s", cfg.AdminAddress)
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Admin server error: %v", err)
			}
		}()
	}

	err := sup.Supervise(ctx)

	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		adminSrv.Shutdown(shutdownCtx)
	}

	if err != nil {
		log.Fatalf("Supervisor exited: %v", err)
	}
	log.Println("Supervisor exited gracefully")
}
