package fand

import (
	"context"
	"errors"
	"testing"
	"time"

	"GpuFanD/internal/curve"
)

type fakeTemps struct {
	temps map[string]int
	errs  map[string]error
}

func (f *fakeTemps) Temperature(bus string) (int, error) {
	if err := f.errs[bus]; err != nil {
		return 0, err
	}
	return f.temps[bus], nil
}

type fanCommand struct {
	display string
	attr    string
	speed   int
}

type fakeFans struct {
	commands []fanCommand
	failSet  bool
}

func (f *fakeFans) EnableFanControl(display string) error {
	f.commands = append(f.commands, fanCommand{display: display, attr: "enable"})
	return nil
}

func (f *fakeFans) SetFanSpeed(display string, percent int) error {
	if f.failSet {
		return errors.New("nvidia-settings exited 1")
	}
	f.commands = append(f.commands, fanCommand{display: display, attr: "set", speed: percent})
	return nil
}

func (f *fakeFans) ReleaseFanControl(display string) error {
	f.commands = append(f.commands, fanCommand{display: display, attr: "release"})
	return nil
}

func (f *fakeFans) setsFor(display string) []int {
	var out []int
	for _, c := range f.commands {
		if c.attr == "set" && c.display == display {
			out = append(out, c.speed)
		}
	}
	return out
}

func testController(t *testing.T, temps *fakeTemps, fans *fakeFans, displays map[string]string) *Controller {
	t.Helper()

	crv, err := curve.New(50, 80, 30, 99)
	if err != nil {
		t.Fatalf("curve.New failed: %v", err)
	}
	return NewController(temps, fans, ControllerOptions{
		Curve:    crv,
		Interval: time.Second,
		Displays: displays,
	})
}

func TestFirstTickAlwaysCommands(t *testing.T) {
	t.Parallel()

	temps := &fakeTemps{temps: map[string]int{"bus-a": 40, "bus-b": 70}}
	fans := &fakeFans{}
	c := testController(t, temps, fans, map[string]string{"bus-a": ":0", "bus-b": ":1"})

	c.tick()

	// Cold GPU gets the curve floor, warm GPU the band's lower edge.
	if got := fans.setsFor(":0"); len(got) != 1 || got[0] != 30 {
		t.Fatalf("commands for :0 = %v, want [30]", got)
	}
	if got := fans.setsFor(":1"); len(got) != 1 || got[0] != 60 {
		t.Fatalf("commands for :1 = %v, want [60]", got)
	}
}

func TestSteadyTemperatureIssuesNoFurtherCommands(t *testing.T) {
	t.Parallel()

	temps := &fakeTemps{temps: map[string]int{"bus-a": 70}}
	fans := &fakeFans{}
	c := testController(t, temps, fans, map[string]string{"bus-a": ":0"})

	for i := 0; i < 10; i++ {
		c.tick()
	}

	if got := fans.setsFor(":0"); len(got) != 1 {
		t.Fatalf("steady temperature produced %d commands, want 1: %v", len(got), got)
	}
}

func TestRisingTemperatureRaisesSpeed(t *testing.T) {
	t.Parallel()

	temps := &fakeTemps{temps: map[string]int{"bus-a": 55}}
	fans := &fakeFans{}
	c := testController(t, temps, fans, map[string]string{"bus-a": ":0"})

	c.tick()
	temps.temps["bus-a"] = 75
	c.tick()

	got := fans.setsFor(":0")
	if len(got) != 2 {
		t.Fatalf("expected 2 commands, got %v", got)
	}
	if got[1] <= got[0] {
		t.Fatalf("speed did not rise with temperature: %v", got)
	}
}

func TestFailingGpuIsSkippedOthersServed(t *testing.T) {
	t.Parallel()

	temps := &fakeTemps{
		temps: map[string]int{"bus-b": 70},
		errs:  map[string]error{"bus-a": errors.New("nvidia-smi timed out")},
	}
	fans := &fakeFans{}
	c := testController(t, temps, fans, map[string]string{"bus-a": ":0", "bus-b": ":1"})

	c.tick()

	if got := fans.setsFor(":0"); len(got) != 0 {
		t.Fatalf("failing GPU received commands: %v", got)
	}
	if got := fans.setsFor(":1"); len(got) != 1 {
		t.Fatalf("healthy GPU not served: %v", got)
	}
}

func TestFailedCommandKeepsHeldSpeed(t *testing.T) {
	t.Parallel()

	temps := &fakeTemps{temps: map[string]int{"bus-a": 70}}
	fans := &fakeFans{failSet: true}
	c := testController(t, temps, fans, map[string]string{"bus-a": ":0"})

	c.tick()

	// The command failed, so the held speed must still be zero and the
	// next tick must retry.
	if c.speeds["bus-a"] != 0 {
		t.Fatalf("held speed = %d after failed command, want 0", c.speeds["bus-a"])
	}

	fans.failSet = false
	c.tick()
	if got := fans.setsFor(":0"); len(got) != 1 {
		t.Fatalf("retry after failure did not command: %v", got)
	}
}

func TestRunReleasesOnCancel(t *testing.T) {
	t.Parallel()

	temps := &fakeTemps{temps: map[string]int{"bus-a": 70}}
	fans := &fakeFans{}
	c := testController(t, temps, fans, map[string]string{"bus-a": ":0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// Give the immediate first tick a moment, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	last := fans.commands[len(fans.commands)-1]
	if last.attr != "release" || last.display != ":0" {
		t.Fatalf("last command = %+v, want release on :0", last)
	}
}

func TestReconfigureSwapsCurve(t *testing.T) {
	t.Parallel()

	temps := &fakeTemps{temps: map[string]int{"bus-a": 45}}
	fans := &fakeFans{}
	c := testController(t, temps, fans, map[string]string{"bus-a": ":0"})

	c.tick()
	if got := fans.setsFor(":0"); len(got) != 1 || got[0] != 30 {
		t.Fatalf("initial command = %v, want [30]", got)
	}

	// A hotter-biased curve turns 45C from idle into mid-band.
	crv, err := curve.New(30, 60, 40, 99)
	if err != nil {
		t.Fatalf("curve.New failed: %v", err)
	}
	c.Reconfigure(crv, 2*time.Second)

	c.tick()
	got := fans.setsFor(":0")
	if len(got) != 2 || got[1] <= 30 {
		t.Fatalf("reconfigured curve did not change the command: %v", got)
	}
}

func TestDryRunIssuesNoCommands(t *testing.T) {
	t.Parallel()

	crv, err := curve.New(50, 80, 30, 99)
	if err != nil {
		t.Fatalf("curve.New failed: %v", err)
	}
	temps := &fakeTemps{temps: map[string]int{"bus-a": 75}}
	fans := &fakeFans{}
	c := NewController(temps, fans, ControllerOptions{
		Curve:    crv,
		Interval: time.Second,
		Displays: map[string]string{"bus-a": ":0"},
		DryRun:   true,
	})

	c.tick()
	c.release()

	if len(fans.commands) != 0 {
		t.Fatalf("dry run issued commands: %v", fans.commands)
	}
}
