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

// Package metrics exports per-tick fan samples to optional sinks.
package metrics

import "time"

// Sample is the controller's measurement and decision for one GPU on
// one polling tick.
type Sample struct {
	Bus         string
	Display     string
	Temperature int
	MinSpeed    int
	MaxSpeed    int
	Speed       int
	Changed     bool
	Time        time.Time
}

// Sink receives the samples of each tick. Write must not block the
// control loop for long; slow sinks drop data instead.
type Sink interface {
	Name() string
	Write(samples []Sample) error
	Close() error
}
