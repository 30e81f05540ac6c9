// Package supervisor owns the prefork launch: it binds the listening
// socket exactly once, spawns the configured number of worker processes
// sharing that socket, keeps the pool at full strength with backoff-paced
// restarts, and tears everything down in order on shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"prefork/internal/config"
	"prefork/internal/models"
)

var (
	ErrBind           = errors.New("failed to bind listen address")
	ErrLoadFailed     = errors.New("application failed to load in every worker")
	ErrCrashLoop      = errors.New("worker crash rate exceeded threshold")
	ErrAlreadyStarted = errors.New("supervisor already started")
)

// errShuttingDown refuses spawns that race a shutdown.
var errShuttingDown = errors.New("supervisor is shutting down")

// slotState tracks one worker slot across process generations. The proc
// pointer identifies the current generation; exit events from replaced
// generations are ignored.
type slotState struct {
	slot     int
	proc     *workerProc
	status   string
	restarts int
	backoff  time.Duration
}

// Supervisor keeps cfg.Workers worker processes serving the shared
// listener. The listener is created once in Start and closed last in
// Shutdown; workers only ever accept on it.
type Supervisor struct {
	cfg      config.Config
	launchID string
	logger   *log.Logger
	events   *EventBuffer
	metrics  *Metrics
	guard    *crashGuard

	workerArgv []string

	mu     sync.RWMutex
	slots  map[int]*slotState
	ln     net.Listener
	lnFile *os.File

	exits chan *workerProc
	done  chan struct{}

	started      atomic.Bool
	shuttingDown atomic.Bool
}

// Option customizes a Supervisor at construction time.
type Option func(*Supervisor)

// WithWorkerCommand overrides the argv used to spawn workers. The default
// re-executes the current binary with the -worker flag.
func WithWorkerCommand(argv []string) Option {
	return func(s *Supervisor) {
		s.workerArgv = argv
	}
}

// WithLogger replaces the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// New builds a Supervisor for cfg. Nothing is bound or spawned until
// Start.
func New(cfg config.Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		launchID: uuid.NewString(),
		logger:   log.New(os.Stderr, "[prefork] ", log.LstdFlags),
		events:   NewEventBuffer(1000),
		metrics:  newMetrics(),
		guard:    newCrashGuard(cfg.CrashThreshold, cfg.CrashWindow),
		slots:    make(map[int]*slotState, cfg.Workers),
		exits:    make(chan *workerProc, cfg.Workers*2+8),
		done:     make(chan struct{}),
	}

	for slot := 1; slot <= cfg.Workers; slot++ {
		s.slots[slot] = &slotState{slot: slot, status: models.StatusStopped}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listen address and brings up the worker pool. Bind
// failure is fatal and spawns nothing. Start returns once every worker has
// reported ready; if every worker's first attempt fails to load the
// application, the whole launch is aborted with ErrLoadFailed. A partial
// first-round failure degrades to the restart path instead. Cancelling
// ctx during the ready-wait aborts the launch.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if len(s.workerArgv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve worker binary: %w", err)
		}
		s.workerArgv = []string{exe, "-worker"}
	}

	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w: %v", addr, ErrBind, err)
	}

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return fmt.Errorf("listen on %s: unexpected listener type %T", addr, ln)
	}
	lnFile, err := tcpLn.File()
	if err != nil {
		ln.Close()
		return fmt.Errorf("dup listener fd: %w", err)
	}

	s.mu.Lock()
	s.ln = ln
	s.lnFile = lnFile
	s.mu.Unlock()

	s.logger.Printf("launch %s: bound %s, starting %d worker(s) for app %q",
		s.launchID, ln.Addr(), s.cfg.Workers, s.cfg.App)
	s.events.Add("info", fmt.Sprintf("bound %s", ln.Addr()), "")

	var procs []*workerProc
	for slot := 1; slot <= s.cfg.Workers; slot++ {
		p, err := s.spawnWorker(slot)
		if err != nil {
			s.abortLaunch(procs)
			return err
		}
		procs = append(procs, p)
	}

	loadFailures := 0
	otherFailures := 0
	for _, p := range procs {
		select {
		case <-ctx.Done():
			s.logger.Printf("startup cancelled: %v", ctx.Err())
			s.abortLaunch(procs)
			return fmt.Errorf("startup cancelled: %w", ctx.Err())
		case <-p.ready:
		case <-p.exited:
			s.mu.Lock()
			s.slots[p.slot].status = models.StatusCrashed
			s.mu.Unlock()
			if loadFailed(p.exitCode) {
				loadFailures++
				s.logger.Printf("worker %d failed to load app %q (exit %d)", p.slot, s.cfg.App, p.exitCode)
			} else {
				otherFailures++
				s.logger.Printf("worker %d exited during startup (exit %d)", p.slot, p.exitCode)
			}
		}
	}

	if loadFailures == s.cfg.Workers {
		s.abortLaunch(nil)
		return fmt.Errorf("%w: %q", ErrLoadFailed, s.cfg.App)
	}

	if loadFailures+otherFailures > 0 {
		s.logger.Printf("degraded start: %d of %d worker(s) failed first attempt",
			loadFailures+otherFailures, s.cfg.Workers)
		s.events.Add("warning", "degraded start, some workers failed their first attempt", "")
		return nil
	}

	s.events.Add("info", fmt.Sprintf("all %d worker(s) ready", s.cfg.Workers), "")
	return nil
}

// abortLaunch force-terminates any spawned workers and closes the
// listener. Used only on a failed Start.
func (s *Supervisor) abortLaunch(procs []*workerProc) {
	s.shuttingDown.Store(true)
	close(s.done)

	for _, p := range procs {
		p.signal(unix.SIGKILL)
	}
	for _, p := range procs {
		<-p.exited
	}

	s.closeListener()
}

// Supervise runs until ctx is cancelled or the crash-rate guard trips. A
// worker's unexpected exit is logged and the slot restarted after
// exponential backoff; crashes arriving faster than the configured
// threshold shut the whole launch down with ErrCrashLoop.
func (s *Supervisor) Supervise(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("stop requested")
			return s.Shutdown(s.cfg.DrainTimeout)

		case p := <-s.exits:
			if s.shuttingDown.Load() {
				continue
			}

			s.mu.Lock()
			st := s.slots[p.slot]
			if st == nil || st.proc != p {
				s.mu.Unlock()
				continue
			}
			uptime := time.Since(p.startedAt)
			st.status = models.StatusCrashed
			s.mu.Unlock()

			s.updateReadyGauge()
			s.metrics.crashes.Inc()
			s.events.Add("warning",
				fmt.Sprintf("worker exited unexpectedly (pid %d, exit %d)", p.pid, p.exitCode),
				workerName(p.slot))
			s.logger.Printf("worker %d (pid %d) exited unexpectedly with code %d after %s",
				p.slot, p.pid, p.exitCode, uptime.Round(time.Millisecond))

			if !s.guard.Allow(time.Now()) {
				s.events.Add("error", "crash rate threshold exceeded, shutting down", "")
				s.logger.Printf("crash rate exceeded %d per %s, shutting down launch",
					s.cfg.CrashThreshold, s.cfg.CrashWindow)
				s.Shutdown(s.cfg.DrainTimeout)
				return fmt.Errorf("%w: last crash in slot %d", ErrCrashLoop, p.slot)
			}

			delay := s.nextBackoff(st, uptime)
			s.logger.Printf("restarting worker %d in %s", p.slot, delay)
			go s.restartAfter(p.slot, delay)
		}
	}
}

// nextBackoff advances the slot's backoff schedule. A worker that stayed
// healthy past the reset window starts the schedule over.
func (s *Supervisor) nextBackoff(st *slotState, uptime time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uptime >= s.cfg.BackoffReset {
		st.backoff = 0
	}
	if st.backoff == 0 {
		st.backoff = s.cfg.BackoffInitial
	}
	delay := st.backoff
	st.backoff *= 2
	if st.backoff > s.cfg.BackoffMax {
		st.backoff = s.cfg.BackoffMax
	}
	st.restarts++
	return delay
}

func (s *Supervisor) restartAfter(slot int, delay time.Duration) {
	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-t.C:
	case <-s.done:
		return
	}
	if s.shuttingDown.Load() {
		return
	}

	if _, err := s.spawnWorker(slot); err != nil {
		if errors.Is(err, errShuttingDown) {
			return
		}
		s.logger.Printf("restart of worker %d failed: %v", slot, err)
		s.events.Add("error", fmt.Sprintf("restart failed: %v", err), workerName(slot))
		go s.restartAfter(slot, s.cfg.BackoffMax)
		return
	}

	s.metrics.restarts.Inc()
	s.events.Add("info", "worker restarted", workerName(slot))
}

// Shutdown broadcasts a graceful stop to every worker at once, waits up to
// timeout for them to drain, force-kills the rest, and closes the shared
// listener last. Calling it more than once is a no-op.
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)

	s.logger.Printf("shutting down, drain timeout %s", timeout)
	s.events.Add("info", "shutdown started", "")

	s.mu.Lock()
	var procs []*workerProc
	for _, st := range s.slots {
		if st.proc != nil {
			procs = append(procs, st.proc)
		}
	}
	s.mu.Unlock()

	// Broadcast first so every worker begins draining at the same time;
	// the supervisor enforces the deadline itself.
	for _, p := range procs {
		p.signal(unix.SIGTERM)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	timedOut := false
	for _, p := range procs {
		if timedOut {
			s.forceKill(p)
			continue
		}
		select {
		case <-p.exited:
		case <-timer.C:
			timedOut = true
			s.forceKill(p)
		}
	}

	s.mu.Lock()
	for _, st := range s.slots {
		st.status = models.StatusStopped
	}
	s.mu.Unlock()
	s.updateReadyGauge()

	s.closeListener()

	s.logger.Printf("shutdown complete")
	s.events.Add("info", "shutdown complete", "")
	return nil
}

// forceKill ends a worker that did not drain in time. Not fatal: logged as
// a warning and the shutdown continues.
func (s *Supervisor) forceKill(p *workerProc) {
	select {
	case <-p.exited:
		return
	default:
	}

	s.logger.Printf("worker %d (pid %d) did not drain in time, killing", p.slot, p.pid)
	s.events.Add("warning", "worker did not drain in time, killed", workerName(p.slot))
	p.signal(unix.SIGKILL)
	<-p.exited
}

func (s *Supervisor) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
	if s.lnFile != nil {
		s.lnFile.Close()
		s.lnFile = nil
	}
}

func (s *Supervisor) updateReadyGauge() {
	s.metrics.readyWorkers.Set(float64(s.ReadyCount()))
}

// Addr reports the bound data-plane address, or nil before Start.
func (s *Supervisor) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// LaunchID identifies this supervisor run in logs and status output.
func (s *Supervisor) LaunchID() string {
	return s.launchID
}

// ReadyCount returns the number of workers currently accepting traffic.
func (s *Supervisor) ReadyCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, st := range s.slots {
		if st.status == models.StatusReady {
			n++
		}
	}
	return n
}

// Ready reports whether the full worker complement is serving.
func (s *Supervisor) Ready() bool {
	return s.ReadyCount() == s.cfg.Workers
}

// Workers returns a snapshot of every slot, ordered by slot number.
func (s *Supervisor) Workers() []models.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Worker, 0, len(s.slots))
	for _, st := range s.slots {
		w := models.Worker{
			Slot:     st.slot,
			Status:   st.status,
			Uptime:   "N/A",
			Restarts: st.restarts,
		}
		if st.proc != nil {
			w.Pid = st.proc.pid
			if st.status == models.StatusReady || st.status == models.StatusStarting {
				w.Uptime = formatDuration(time.Since(st.proc.startedAt))
			}
		}
		out = append(out, w)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Events returns up to n of the most recent supervisor events.
func (s *Supervisor) Events(n int) []models.Event {
	return s.events.Last(n)
}

// MetricsRegistry exposes the supervisor's private metrics registry for
// the admin endpoint.
func (s *Supervisor) MetricsRegistry() *prometheus.Registry {
	return s.metrics.Registry
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour

	hours := d / time.Hour
	d -= hours * time.Hour

	minutes := d / time.Minute
	d -= minutes * time.Minute

	seconds := d / time.Second

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
