package nvidia

import (
	"errors"
	"reflect"
	"testing"
)

func TestAssignSetsDisplayEnv(t *testing.T) {
	t.Parallel()

	var calls []call
	set := NewSettingsWithRunner(fakeRunner("", nil, &calls))

	if err := set.Assign(":3", "[gpu:0]/GPUFanControlState=1"); err != nil {
		t.Fatalf("Assign() failed: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 command, got %d", len(calls))
	}
	if !reflect.DeepEqual(calls[0].env, []string{"DISPLAY=:3"}) {
		t.Fatalf("env = %v, want [DISPLAY=:3]", calls[0].env)
	}
	if !reflect.DeepEqual(calls[0].args, []string{"-a", "[gpu:0]/GPUFanControlState=1"}) {
		t.Fatalf("args = %v", calls[0].args)
	}
}

func TestFanControlAttributes(t *testing.T) {
	t.Parallel()

	var calls []call
	set := NewSettingsWithRunner(fakeRunner("", nil, &calls))

	if err := set.EnableFanControl(":0"); err != nil {
		t.Fatalf("EnableFanControl() failed: %v", err)
	}
	if err := set.SetFanSpeed(":0", 85); err != nil {
		t.Fatalf("SetFanSpeed() failed: %v", err)
	}
	if err := set.ReleaseFanControl(":0"); err != nil {
		t.Fatalf("ReleaseFanControl() failed: %v", err)
	}

	want := []string{
		"[gpu:0]/GPUFanControlState=1",
		"[fan:0]/GPUTargetFanSpeed=85",
		"[gpu:0]/GPUFanControlState=0",
	}
	if len(calls) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(calls))
	}
	for i, w := range want {
		if calls[i].args[1] != w {
			t.Fatalf("command %d assigned %q, want %q", i, calls[i].args[1], w)
		}
	}
}

func TestSetFanSpeedRange(t *testing.T) {
	t.Parallel()

	set := NewSettingsWithRunner(fakeRunner("", nil, nil))
	if err := set.SetFanSpeed(":0", 101); err == nil {
		t.Fatal("SetFanSpeed(101) should fail")
	}
	if err := set.SetFanSpeed(":0", -1); err == nil {
		t.Fatal("SetFanSpeed(-1) should fail")
	}
}

func TestAssignPropagatesCommandError(t *testing.T) {
	t.Parallel()

	set := NewSettingsWithRunner(fakeRunner("ERROR: unable to open display", errors.New("exit status 1"), nil))
	if err := set.Assign(":9", "[gpu:0]/GPUFanControlState=1"); err == nil {
		t.Fatal("Assign() should propagate command failure")
	}
}
