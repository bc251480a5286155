package curve

import "testing"

func defaultCurve(t *testing.T) *Curve {
	t.Helper()

	c, err := New(50, 80, 30, 99)
	if err != nil {
		t.Fatalf("New(50, 80, 30, 99) failed: %v", err)
	}
	return c
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		tempLow, tempHigh      int
		speedLow, speedHigh    int
		wantErr                bool
	}{
		{name: "default curve", tempLow: 50, tempHigh: 80, speedLow: 30, speedHigh: 99},
		{name: "inverted temps", tempLow: 80, tempHigh: 50, speedLow: 30, speedHigh: 99, wantErr: true},
		{name: "equal temps", tempLow: 60, tempHigh: 60, speedLow: 30, speedHigh: 99, wantErr: true},
		{name: "inverted speeds", tempLow: 50, tempHigh: 80, speedLow: 99, speedHigh: 30, wantErr: true},
		{name: "zero low speed", tempLow: 50, tempHigh: 80, speedLow: 0, speedHigh: 99, wantErr: true},
		{name: "high speed over 100", tempLow: 50, tempHigh: 80, speedLow: 30, speedHigh: 101, wantErr: true},
		{name: "full band", tempLow: 40, tempHigh: 90, speedLow: 1, speedHigh: 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.tempLow, tt.tempHigh, tt.speedLow, tt.speedHigh)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%d, %d, %d, %d) error = %v, wantErr %v",
					tt.tempLow, tt.tempHigh, tt.speedLow, tt.speedHigh, err, tt.wantErr)
			}
		})
	}
}

func TestBandEdges(t *testing.T) {
	t.Parallel()

	c := defaultCurve(t)

	tests := []struct {
		name    string
		temp    int
		wantMin int
		wantMax int
	}{
		{name: "far below range", temp: 20, wantMin: 30, wantMax: 30},
		{name: "just below low corner", temp: 49, wantMin: 30, wantMax: 30},
		{name: "low corner", temp: 50, wantMin: 30, wantMax: 30},
		{name: "middle", temp: 65, wantMin: 47, wantMax: 81},
		{name: "high corner", temp: 80, wantMin: 99, wantMax: 99},
		{name: "just above high corner", temp: 81, wantMin: 99, wantMax: 99},
		{name: "far above range", temp: 110, wantMin: 99, wantMax: 99},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotMin, gotMax := c.MinSpeed(tt.temp), c.MaxSpeed(tt.temp)
			if gotMin != tt.wantMin || gotMax != tt.wantMax {
				t.Fatalf("band at %dC = [%d, %d], want [%d, %d]",
					tt.temp, gotMin, gotMax, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestBandOrderingInvariant(t *testing.T) {
	t.Parallel()

	c := defaultCurve(t)
	for temp := -20; temp <= 150; temp++ {
		lo, hi := c.MinSpeed(temp), c.MaxSpeed(temp)
		if lo < c.SpeedLow || hi > c.SpeedHigh || lo > hi {
			t.Fatalf("band at %dC = [%d, %d] violates %d <= lo <= hi <= %d",
				temp, lo, hi, c.SpeedLow, c.SpeedHigh)
		}
	}
}

func TestTargetClampsIntoBand(t *testing.T) {
	t.Parallel()

	c := defaultCurve(t)

	tests := []struct {
		name string
		held int
		temp int
		want int
	}{
		{name: "cold start pushes to floor", held: 0, temp: 40, want: 30},
		{name: "inside band is kept", held: 60, temp: 65, want: 60},
		{name: "below band is raised", held: 35, temp: 70, want: c.MinSpeed(70)},
		{name: "above band is lowered", held: 95, temp: 55, want: c.MaxSpeed(55)},
		{name: "hot pins to ceiling", held: 50, temp: 90, want: 99},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, lo, hi := c.Target(tt.held, tt.temp)
			if got != tt.want {
				t.Fatalf("Target(%d, %d) = %d, want %d", tt.held, tt.temp, got, tt.want)
			}
			if got < lo || got > hi {
				t.Fatalf("Target(%d, %d) = %d outside band [%d, %d]", tt.held, tt.temp, got, lo, hi)
			}
		})
	}
}

func TestTargetIdempotent(t *testing.T) {
	t.Parallel()

	c := defaultCurve(t)
	for temp := 30; temp <= 100; temp += 5 {
		for held := 0; held <= 100; held += 10 {
			once, _, _ := c.Target(held, temp)
			twice, _, _ := c.Target(once, temp)
			if once != twice {
				t.Fatalf("Target not idempotent at held=%d temp=%d: %d then %d", held, temp, once, twice)
			}
		}
	}
}

// A one-degree wobble around a steady temperature must not produce a new
// command once the speed has settled inside the band.
func TestHysteresisDampsOscillation(t *testing.T) {
	t.Parallel()

	c := defaultCurve(t)

	speed, _, _ := c.Target(0, 71)
	for i := 0; i < 50; i++ {
		temp := 70
		if i%2 == 1 {
			temp = 71
		}
		next, _, _ := c.Target(speed, temp)
		if next != speed {
			t.Fatalf("speed changed from %d to %d on wobble tick %d", speed, next, i)
		}
		speed = next
	}
}

func TestTableCoversRange(t *testing.T) {
	t.Parallel()

	c := defaultCurve(t)
	rows := c.Table(5)
	if len(rows) == 0 {
		t.Fatal("Table(5) returned no rows")
	}
	if rows[0].Temp >= c.TempLow {
		t.Fatalf("first row temp %d not below TempLow %d", rows[0].Temp, c.TempLow)
	}
	last := rows[len(rows)-1]
	if last.Temp <= c.TempHigh {
		t.Fatalf("last row temp %d not above TempHigh %d", last.Temp, c.TempHigh)
	}
	for _, r := range rows {
		if r.MinSpeed != c.MinSpeed(r.Temp) || r.MaxSpeed != c.MaxSpeed(r.Temp) {
			t.Fatalf("row %+v disagrees with band [%d, %d]", r, c.MinSpeed(r.Temp), c.MaxSpeed(r.Temp))
		}
	}
}
