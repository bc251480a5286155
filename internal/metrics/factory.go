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

package metrics

import "GpuFanD/internal/util"

// BuildSinks constructs every sink enabled in the config. A sink that
// fails to come up is logged and skipped; metrics are an auxiliary
// concern and must not keep the fans unmanaged.
func BuildSinks(cfg *util.Config) []Sink {
	var sinks []Sink

	if cfg.Influxdb != nil {
		sink, err := NewInfluxDBSink(cfg.Influxdb)
		if err != nil {
			log.Errorf("Disabling InfluxDB sink: %v", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.Prometheus != nil && cfg.Prometheus.Enabled {
		sinks = append(sinks, NewPrometheusSink(cfg.Prometheus.ListenAddress))
	}

	return sinks
}

// Broadcast writes the samples to every sink, logging failures without
// propagating them.
func Broadcast(sinks []Sink, samples []Sample) {
	for _, sink := range sinks {
		if err := sink.Write(samples); err != nil {
			log.Warnf("Failed to write samples to %s: %v", sink.Name(), err)
		}
	}
}

// CloseAll shuts down every sink.
func CloseAll(sinks []Sink) {
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			log.Warnf("Failed to close %s sink: %v", sink.Name(), err)
		}
	}
}
