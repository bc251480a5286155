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

// Package fand is the fan-control daemon: it owns the polling loop that
// drives each GPU fan along the hysteresis curve, the daemon command
// line, and the status file other tools read.
package fand

import (
	"context"
	"sort"
	"sync"
	"time"

	logrus "github.com/sirupsen/logrus"

	"GpuFanD/internal/curve"
	"GpuFanD/internal/metrics"
)

var log = logrus.WithField("component", "Controller")

// TempReader reads a GPU temperature by PCI bus ID. *nvidia.SMI
// implements it.
type TempReader interface {
	Temperature(bus string) (int, error)
}

// FanWriter issues fan commands against an X display. *nvidia.Settings
// implements it.
type FanWriter interface {
	EnableFanControl(display string) error
	SetFanSpeed(display string, percent int) error
	ReleaseFanControl(display string) error
}

// Controller runs the feedback loop between GPU temperatures and fan
// speeds. It is sequential: one tick walks all GPUs in bus order.
type Controller struct {
	temps TempReader
	fans  FanWriter

	displays map[string]string // bus -> display
	order    []string          // buses, stable iteration order

	mu       sync.Mutex
	crv      *curve.Curve
	interval time.Duration

	// speeds holds the last commanded speed per bus. Zero at startup
	// guarantees the first tick always issues a command, so the fans
	// are in a known state from the first interval on.
	speeds map[string]int

	sinks  []metrics.Sink
	status *StatusWriter
	dryRun bool
}

type ControllerOptions struct {
	Curve    *curve.Curve
	Interval time.Duration
	Displays map[string]string
	Sinks    []metrics.Sink
	Status   *StatusWriter
	DryRun   bool
}

func NewController(temps TempReader, fans FanWriter, opts ControllerOptions) *Controller {
	order := make([]string, 0, len(opts.Displays))
	for bus := range opts.Displays {
		order = append(order, bus)
	}
	sort.Strings(order)

	speeds := make(map[string]int, len(order))
	for _, bus := range order {
		speeds[bus] = 0
	}

	return &Controller{
		temps:    temps,
		fans:     fans,
		displays: opts.Displays,
		order:    order,
		crv:      opts.Curve,
		interval: opts.Interval,
		speeds:   speeds,
		sinks:    opts.Sinks,
		status:   opts.Status,
		dryRun:   opts.DryRun,
	}
}

// Reconfigure swaps the curve and interval without restarting the loop.
// Used by the SIGHUP reload path.
func (c *Controller) Reconfigure(crv *curve.Curve, interval time.Duration) {
	c.mu.Lock()
	c.crv = crv
	c.interval = interval
	c.mu.Unlock()
	log.Infof("Reconfigured: curve %dC->%d%% .. %dC->%d%%, interval %v",
		crv.TempLow, crv.SpeedLow, crv.TempHigh, crv.SpeedHigh, interval)
}

func (c *Controller) snapshot() (*curve.Curve, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crv, c.interval
}

// Run polls until the context is cancelled, then releases fan control
// back to the driver. The first tick fires immediately.
func (c *Controller) Run(ctx context.Context) {
	defer c.release()

	_, interval := c.snapshot()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.tick()
	for {
		select {
		case <-ticker.C:
			c.tick()
			// Pick up a reconfigured interval on the next cycle.
			if _, next := c.snapshot(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-ctx.Done():
			return
		}
	}
}

// tick walks every GPU once: read temperature, clamp the held speed into
// the curve's band, and command the fan when the speed left the band. A
// failing GPU is skipped for this tick; the others are still served.
func (c *Controller) tick() {
	crv, _ := c.snapshot()
	now := time.Now()
	samples := make([]metrics.Sample, 0, len(c.order))

	for _, bus := range c.order {
		display := c.displays[bus]

		temp, err := c.temps.Temperature(bus)
		if err != nil {
			log.Errorf("Skipping GPU %s this tick: %v", bus, err)
			continue
		}

		held := c.speeds[bus]
		target, lo, hi := crv.Target(held, temp)

		if target != held {
			if err := c.command(display, target); err != nil {
				log.Errorf("Failed to set fan speed for GPU %s (%s): %v", bus, display, err)
				continue
			}
			c.speeds[bus] = target
			log.Infof("GPU %s, %dC -> [%d%%-%d%%]. Setting speed to %d%%", display, temp, lo, hi, target)
		} else {
			log.Infof("GPU %s, %dC -> [%d%%-%d%%]. Leaving speed at %d%%", display, temp, lo, hi, target)
		}

		samples = append(samples, metrics.Sample{
			Bus:         bus,
			Display:     display,
			Temperature: temp,
			MinSpeed:    lo,
			MaxSpeed:    hi,
			Speed:       c.speeds[bus],
			Changed:     target != held,
			Time:        now,
		})
	}

	if c.status != nil {
		if err := c.status.WriteStatus(now, samples); err != nil {
			log.Warnf("Failed to write status file: %v", err)
		}
	}
	metrics.Broadcast(c.sinks, samples)
}

// command enables manual fan control and sets the target speed. Enabling
// on every change is idempotent and survives driver-side resets.
func (c *Controller) command(display string, target int) error {
	if c.dryRun {
		return nil
	}
	if err := c.fans.EnableFanControl(display); err != nil {
		return err
	}
	return c.fans.SetFanSpeed(display, target)
}

// release hands every fan back to the driver's automatic control.
func (c *Controller) release() {
	for _, bus := range c.order {
		display := c.displays[bus]
		if c.dryRun {
			continue
		}
		if err := c.fans.ReleaseFanControl(display); err != nil {
			log.Errorf("Failed to release fan control for GPU %s (%s): %v", bus, display, err)
			continue
		}
		log.Infof("Released fan control for GPU at %s", display)
	}
}
