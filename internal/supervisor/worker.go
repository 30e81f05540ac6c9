package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"prefork/internal/models"
	"prefork/internal/worker"
)

// workerProc is the supervisor-side handle for one spawned worker process.
// Only the supervisor mutates it; the two watcher goroutines close their
// channel exactly once.
type workerProc struct {
	slot      int
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	ready  chan struct{} // closed once the worker reports readiness
	exited chan struct{} // closed once Wait returns

	exitCode int // valid after exited is closed
}

func (p *workerProc) signal(sig unix.Signal) {
	// The process may already be reaped; a failed signal is not an error.
	_ = unix.Kill(p.pid, sig)
}

// spawnWorker starts one worker for the slot. The shared listener is
// dup'ed to the child as fd 3, the readiness pipe as fd 4. The lock is
// held from the shutdown check through Start and the slot assignment, so
// a concurrent Shutdown either observes the new proc in its snapshot or
// this spawn observes the shutdown and bails before inheriting the
// listener.
func (s *Supervisor) spawnWorker(slot int) (*workerProc, error) {
	readyR, readyW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("readiness pipe: %w", err)
	}

	s.mu.Lock()
	if s.shuttingDown.Load() || s.lnFile == nil {
		s.mu.Unlock()
		readyR.Close()
		readyW.Close()
		return nil, fmt.Errorf("spawn worker %d: %w", slot, errShuttingDown)
	}

	cmd := exec.Command(s.workerArgv[0], s.workerArgv[1:]...)
	cmd.Env = append(os.Environ(),
		"PREFORK_APP="+s.cfg.App,
		fmt.Sprintf("PREFORK_SLOT=%d", slot),
		"PREFORK_DRAIN_TIMEOUT="+s.cfg.DrainTimeout.String(),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{s.lnFile, readyW}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		readyR.Close()
		readyW.Close()
		return nil, fmt.Errorf("spawn worker %d: %w", slot, err)
	}
	readyW.Close()

	p := &workerProc{
		slot:      slot,
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		ready:     make(chan struct{}),
		exited:    make(chan struct{}),
	}

	st := s.slots[slot]
	st.proc = p
	st.status = models.StatusStarting
	s.mu.Unlock()

	go s.watchReady(p, readyR)
	go s.watchExit(p)

	s.logger.Printf("worker %d started (pid %d)", slot, p.pid)
	return p, nil
}

// watchReady waits for the single readiness byte. A worker that neither
// reports ready nor exits within the ready timeout is killed so the exit
// path can deal with it.
func (s *Supervisor) watchReady(p *workerProc, readyR *os.File) {
	defer readyR.Close()

	readyR.SetReadDeadline(time.Now().Add(s.cfg.ReadyTimeout))

	buf := make([]byte, 1)
	n, err := readyR.Read(buf)
	if err != nil || n == 0 {
		select {
		case <-p.exited:
			// Exit handling owns this failure.
		default:
			if !s.shuttingDown.Load() {
				s.logger.Printf("worker %d (pid %d) not ready within %s, killing", p.slot, p.pid, s.cfg.ReadyTimeout)
				p.signal(unix.SIGKILL)
			}
		}
		return
	}

	close(p.ready)
	s.markReady(p)
}

func (s *Supervisor) markReady(p *workerProc) {
	s.mu.Lock()
	st := s.slots[p.slot]
	current := st != nil && st.proc == p
	if current {
		st.status = models.StatusReady
	}
	s.mu.Unlock()

	if !current || s.shuttingDown.Load() {
		return
	}

	s.updateReadyGauge()
	s.events.Add("info", fmt.Sprintf("worker ready (pid %d)", p.pid), workerName(p.slot))
	s.logger.Printf("worker %d ready (pid %d)", p.slot, p.pid)
}

// watchExit reaps the worker and hands the exit to the supervise loop.
func (s *Supervisor) watchExit(p *workerProc) {
	err := p.cmd.Wait()
	p.exitCode = exitStatus(err)
	close(p.exited)

	select {
	case s.exits <- p:
	case <-s.done:
	}
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func loadFailed(code int) bool {
	return code == worker.ExitLoadError
}

func workerName(slot int) string {
	return fmt.Sprintf("worker-%d", slot)
}
