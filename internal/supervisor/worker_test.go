package supervisor

import (
	"errors"
	"testing"

	"prefork/internal/config"
)

func TestSpawnRefusedWhileShuttingDown(t *testing.T) {
	s := New(config.Default())
	s.workerArgv = []string{"/bin/true"}
	s.shuttingDown.Store(true)

	if _, err := s.spawnWorker(1); !errors.Is(err, errShuttingDown) {
		t.Fatalf("spawnWorker error = %v, want errShuttingDown", err)
	}
}

func TestSpawnRefusedWithoutListener(t *testing.T) {
	// Before Start (or after the listener is closed) there is nothing for
	// a worker to inherit; spawning must fail instead of handing the
	// child a nil file.
	s := New(config.Default())
	s.workerArgv = []string{"/bin/true"}

	if _, err := s.spawnWorker(1); !errors.Is(err, errShuttingDown) {
		t.Fatalf("spawnWorker error = %v, want errShuttingDown", err)
	}
}
