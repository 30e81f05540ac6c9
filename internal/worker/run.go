// Package worker is the child-process half of the prefork launcher.
//
// A worker never binds its own socket: it accepts on the listener the
// supervisor passed down as an inherited file descriptor, and it reports
// readiness on a second inherited descriptor before the first accept.
package worker

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"prefork/internal/app"
)

// File descriptor slots assigned by the supervisor via ExtraFiles.
const (
	ListenerFD = 3
	ReadyFD    = 4
)

// Exit codes reported back to the supervisor.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitLoadError = 3
)

// Config is the per-worker launch contract, passed through the
// environment by the supervisor.
type Config struct {
	App          string
	Slot         int
	DrainTimeout time.Duration
}

// ConfigFromEnv reads the contract the supervisor set when spawning this
// process.
func ConfigFromEnv() Config {
	cfg := Config{
		App:          os.Getenv("PREFORK_APP"),
		DrainTimeout: 10 * time.Second,
	}
	if v := os.Getenv("PREFORK_SLOT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Slot = n
		}
	}
	if v := os.Getenv("PREFORK_DRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DrainTimeout = d
		}
	}
	return cfg
}

// Run serves HTTP on the inherited listener until a stop signal arrives,
// then drains in-flight requests for at most cfg.DrainTimeout. It returns
// the process exit code.
func Run(ctx context.Context, cfg Config) int {
	logger := log.New(os.Stderr, "[worker "+strconv.Itoa(cfg.Slot)+"] ", log.LstdFlags)

	ln, err := inheritedListener()
	if err != nil {
		logger.Printf("listener inherit failed: %v", err)
		return ExitError
	}

	handler, err := app.Resolve(cfg.App)
	if err != nil {
		logger.Printf("load failed: %v", err)
		return ExitLoadError
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, unix.SIGTERM, unix.SIGINT)
	defer stop()

	// Readiness is reported only after the application is loaded and
	// immediately before the accept loop starts.
	if err := reportReady(); err != nil {
		logger.Printf("readiness report failed: %v", err)
		return ExitError
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	logger.Printf("serving app %q on %s (pid %d)", cfg.App, ln.Addr(), os.Getpid())

	select {
	case err := <-serveErr:
		// The accept loop died without a stop signal.
		logger.Printf("serve aborted: %v", err)
		return ExitError
	case <-ctx.Done():
	}

	logger.Printf("draining, timeout %s", cfg.DrainTimeout)

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancel()

	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Printf("drain incomplete, closing: %v", err)
		srv.Close()
		return ExitError
	}

	logger.Printf("drained cleanly")
	return ExitOK
}

// inheritedListener rebuilds the shared listening socket from the file
// descriptor the supervisor dup'ed into this process. The worker side only
// ever accepts; the supervisor owns the socket's lifetime.
func inheritedListener() (net.Listener, error) {
	f := os.NewFile(uintptr(ListenerFD), "prefork-listener")
	if f == nil {
		return nil, errors.New("listener fd not inherited")
	}
	defer f.Close()

	return net.FileListener(f)
}

func reportReady() error {
	f := os.NewFile(uintptr(ReadyFD), "prefork-ready")
	if f == nil {
		return errors.New("ready fd not inherited")
	}
	defer f.Close()

	_, err := f.Write([]byte{'r'})
	return err
}
