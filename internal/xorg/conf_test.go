package xorg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecimalizeBusID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		bus     string
		want    string
		wantErr bool
	}{
		{name: "typical bus", bus: "00000000:0B:00.0", want: "11:0:0"},
		{name: "high bus number", bus: "00000000:A1:0F.1", want: "161:15:1"},
		{name: "nonzero domain dropped", bus: "00000001:02:00.0", want: "2:0:0"},
		{name: "lowercase hex", bus: "00000000:0b:00.0", want: "11:0:0"},
		{name: "missing function", bus: "00000000:0B:00", wantErr: true},
		{name: "missing domain", bus: "0B:00.0", wantErr: true},
		{name: "not hex", bus: "00000000:ZZ:00.0", wantErr: true},
		{name: "empty", bus: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecimalizeBusID(tt.bus)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecimalizeBusID(%q) error = %v, wantErr %v", tt.bus, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Fatalf("DecimalizeBusID(%q) = %q, want %q", tt.bus, got, tt.want)
			}
		})
	}
}

func TestRenderConf(t *testing.T) {
	t.Parallel()

	conf, err := RenderConf("00000000:0B:00.0", "/tmp/x/edid.bin", 20)
	if err != nil {
		t.Fatalf("RenderConf() failed: %v", err)
	}

	for _, want := range []string{
		`BusID       "PCI:11:0:0"`,
		`Option      "CustomEDID" "DFP-0:/tmp/x/edid.bin"`,
		`Option      "Coolbits" "20"`,
		`Driver      "nvidia"`,
		`Section "ServerLayout"`,
		`Section "ServerFlags"`,
	} {
		if !strings.Contains(conf, want) {
			t.Fatalf("rendered config is missing %q:\n%s", want, conf)
		}
	}
}

func TestRenderConfBadBus(t *testing.T) {
	t.Parallel()

	if _, err := RenderConf("garbage", "/tmp/edid.bin", 20); err == nil {
		t.Fatal("RenderConf() should fail on a malformed bus ID")
	}
}

func TestWriteConf(t *testing.T) {
	t.Parallel()

	confPath, dir, err := WriteConf("00000000:0B:00.0", 20)
	if err != nil {
		t.Fatalf("WriteConf() failed: %v", err)
	}
	defer os.RemoveAll(dir)

	edidBytes, err := os.ReadFile(filepath.Join(dir, "edid.bin"))
	if err != nil {
		t.Fatalf("edid.bin not written: %v", err)
	}
	if len(edidBytes) != 128 {
		t.Fatalf("edid.bin is %d bytes, want 128", len(edidBytes))
	}

	conf, err := os.ReadFile(confPath)
	if err != nil {
		t.Fatalf("xorg.conf not written: %v", err)
	}
	if !strings.Contains(string(conf), filepath.Join(dir, "edid.bin")) {
		t.Fatal("xorg.conf does not reference the written EDID file")
	}
}

func TestEDIDChecksum(t *testing.T) {
	t.Parallel()

	blob := EDID()
	if len(blob) != 128 {
		t.Fatalf("EDID is %d bytes, want 128", len(blob))
	}

	// An EDID block is valid when all 128 bytes sum to 0 mod 256.
	var sum byte
	for _, b := range blob {
		sum += b
	}
	if sum != 0 {
		t.Fatalf("EDID checksum is %d, want 0", sum)
	}
}

func TestManagerDisplayAssignment(t *testing.T) {
	t.Parallel()

	buses := []string{"00000000:0B:00.0", "00000000:42:00.0", "00000000:61:00.0"}
	m := NewManager(buses, 0, ServerOptions{})

	displays := m.Displays()
	want := map[string]string{
		"00000000:0B:00.0": ":0",
		"00000000:42:00.0": ":1",
		"00000000:61:00.0": ":2",
	}
	for bus, d := range want {
		if displays[bus] != d {
			t.Fatalf("display for %s = %q, want %q", bus, displays[bus], d)
		}
	}

	// A nonzero base shifts every display.
	shifted := NewManager(buses, 5, ServerOptions{}).Displays()
	if shifted["00000000:0B:00.0"] != ":5" || shifted["00000000:61:00.0"] != ":7" {
		t.Fatalf("shifted displays wrong: %v", shifted)
	}
}
