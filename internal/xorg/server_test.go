package xorg

import "testing"

func TestServerDefaults(t *testing.T) {
	t.Parallel()

	srv := NewServer("00000000:0B:00.0", 3, ServerOptions{})
	if srv.Display != ":3" {
		t.Errorf("Display = %q, want :3", srv.Display)
	}
	if srv.binary != "Xorg" {
		t.Errorf("binary = %q, want Xorg", srv.binary)
	}
	if srv.stopTimeout <= 0 {
		t.Errorf("stopTimeout = %v, want a positive default", srv.stopTimeout)
	}
}

func TestServerNotStarted(t *testing.T) {
	t.Parallel()

	srv := NewServer("00000000:0B:00.0", 99, ServerOptions{})
	if srv.Alive() {
		t.Error("Alive() = true for a server that was never started")
	}

	// Stop on a server that never started must be a harmless no-op.
	srv.Stop()
	if srv.Alive() {
		t.Error("Alive() = true after Stop on an unstarted server")
	}
}
