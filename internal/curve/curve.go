/**
 * Copyright (c) 2025 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package curve implements the clamped quadratic hysteresis fan curve.
//
// The curve maps a GPU temperature to a band of acceptable fan speeds
// instead of a single point. As long as the currently commanded speed
// stays inside the band, no new command is issued, which keeps the fans
// from oscillating when the temperature jitters around a set point.
package curve

import "fmt"

type Curve struct {
	TempLow   int // below this the lower band edge is SpeedLow
	TempHigh  int // above this the upper band edge is SpeedHigh
	SpeedLow  int // percent
	SpeedHigh int // percent

	scale float64
}

func New(tempLow, tempHigh, speedLow, speedHigh int) (*Curve, error) {
	if tempLow >= tempHigh {
		return nil, fmt.Errorf("temperature bounds inverted: %d >= %d", tempLow, tempHigh)
	}
	if speedLow >= speedHigh {
		return nil, fmt.Errorf("speed bounds inverted: %d >= %d", speedLow, speedHigh)
	}
	if speedLow <= 0 || speedHigh > 100 {
		return nil, fmt.Errorf("speed bounds out of range (0, 100]: %d, %d", speedLow, speedHigh)
	}

	span := float64(tempHigh - tempLow)
	return &Curve{
		TempLow:   tempLow,
		TempHigh:  tempHigh,
		SpeedLow:  speedLow,
		SpeedHigh: speedHigh,
		scale:     float64(speedHigh-speedLow) / (span * span),
	}, nil
}

// MinSpeed is the lowest acceptable fan speed at temperature t. It rises
// quadratically from SpeedLow at TempLow and saturates at SpeedHigh.
func (c *Curve) MinSpeed(t int) int {
	if t < c.TempLow {
		return c.SpeedLow
	}
	d := float64(t - c.TempLow)
	s := int(c.scale*d*d) + c.SpeedLow
	if s > c.SpeedHigh {
		return c.SpeedHigh
	}
	return s
}

// MaxSpeed is the highest acceptable fan speed at temperature t. It is the
// mirror image of MinSpeed around the upper corner of the curve.
func (c *Curve) MaxSpeed(t int) int {
	if t > c.TempHigh {
		return c.SpeedHigh
	}
	d := float64(t - c.TempHigh)
	s := float64(c.SpeedHigh) - c.scale*d*d
	if s < float64(c.SpeedLow) {
		return c.SpeedLow
	}
	return int(s)
}

// Target clamps the currently held speed into the band for temperature t.
// It returns the speed to command together with the band edges.
func (c *Curve) Target(held, t int) (target, lo, hi int) {
	lo, hi = c.MinSpeed(t), c.MaxSpeed(t)
	target = held
	if target < lo {
		target = lo
	}
	if target > hi {
		target = hi
	}
	return target, lo, hi
}

type Row struct {
	Temp     int
	MinSpeed int
	MaxSpeed int
}

// Table samples the band every step degrees across the active range,
// with one row of margin on either side.
func (c *Curve) Table(step int) []Row {
	if step <= 0 {
		step = 1
	}
	var rows []Row
	for t := c.TempLow - step; t <= c.TempHigh+step; t += step {
		rows = append(rows, Row{Temp: t, MinSpeed: c.MinSpeed(t), MaxSpeed: c.MaxSpeed(t)})
	}
	return rows
}
