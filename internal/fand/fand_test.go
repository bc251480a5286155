package fand

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"GpuFanD/internal/util"
)

func TestEnsurePidFileFreeLiveDaemon(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gpufand.pid")
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid+"\n"), 0644); err != nil {
		t.Fatalf("failed to seed pid file: %v", err)
	}

	if err := ensurePidFileFree(path); err == nil {
		t.Fatal("ensurePidFileFree accepted a pid file owned by a live process")
	}
	if _, err := util.ReadPidFile(path); err != nil {
		t.Errorf("pid file of the live process was removed: %v", err)
	}
}

func TestEnsurePidFileFreeStale(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gpufand.pid")
	// Linux pids are capped at 2^22, so this one cannot be alive.
	if err := os.WriteFile(path, []byte("4999999\n"), 0644); err != nil {
		t.Fatalf("failed to seed pid file: %v", err)
	}

	if err := ensurePidFileFree(path); err != nil {
		t.Fatalf("ensurePidFileFree rejected a stale pid file: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("stale pid file %s was not removed", path)
	}
}

func TestEnsurePidFileFreeMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gpufand.pid")
	if err := ensurePidFileFree(path); err != nil {
		t.Fatalf("ensurePidFileFree failed on a missing pid file: %v", err)
	}
}
