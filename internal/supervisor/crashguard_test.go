package supervisor

import (
	"testing"
	"time"
)

func TestCrashGuardAllowsBelowThreshold(t *testing.T) {
	g := newCrashGuard(5, 10*time.Second)
	now := time.Now()

	for i := 0; i < 5; i++ {
		if !g.Allow(now) {
			t.Fatalf("crash %d denied, threshold is 5", i+1)
		}
	}
}

func TestCrashGuardTripsAboveThreshold(t *testing.T) {
	g := newCrashGuard(3, 10*time.Second)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !g.Allow(now) {
			t.Fatalf("crash %d denied prematurely", i+1)
		}
	}
	if g.Allow(now) {
		t.Fatal("4th crash in the same instant should trip the guard")
	}
}

func TestCrashGuardRecoversOverTime(t *testing.T) {
	g := newCrashGuard(2, 2*time.Second)
	now := time.Now()

	if !g.Allow(now) || !g.Allow(now) {
		t.Fatal("burst within threshold denied")
	}
	if g.Allow(now) {
		t.Fatal("guard should be exhausted")
	}
	// One window later the bucket has refilled.
	if !g.Allow(now.Add(2 * time.Second)) {
		t.Fatal("guard should recover after the window")
	}
}

func TestCrashGuardDisabled(t *testing.T) {
	var g *crashGuard
	for i := 0; i < 100; i++ {
		if !g.Allow(time.Now()) {
			t.Fatal("nil guard must always allow")
		}
	}
	if newCrashGuard(0, time.Second) != nil {
		t.Fatal("zero threshold must disable the guard")
	}
}
