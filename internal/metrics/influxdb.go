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

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	logrus "github.com/sirupsen/logrus"

	"GpuFanD/internal/util"
)

var log = logrus.WithField("component", "Metrics")

const (
	maxRetries    = 3
	retryInterval = 5 * time.Second
)

type InfluxDBSink struct {
	client      influxdb2.Client
	org         string
	bucket      string
	measurement string
}

// NewInfluxDBSink connects to InfluxDB, pinging with retries so a slow
// database startup does not take the daemon down with it.
func NewInfluxDBSink(cfg *util.InfluxdbConfig) (*InfluxDBSink, error) {
	var client influxdb2.Client
	var err error

	for i := 0; i < maxRetries; i++ {
		client = influxdb2.NewClient(cfg.Url, cfg.Token)
		_, err = client.Ping(context.Background())

		if err == nil {
			break
		}

		log.Warnf("Failed to connect to InfluxDB (attempt %d/%d): %v", i+1, maxRetries, err)
		client.Close()

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to ping InfluxDB after %d attempts: %v", maxRetries, err)
	}

	return &InfluxDBSink{
		client:      client,
		org:         cfg.Org,
		bucket:      cfg.Bucket,
		measurement: cfg.Measurement,
	}, nil
}

func (s *InfluxDBSink) Name() string { return "influxdb" }

func (s *InfluxDBSink) Write(samples []Sample) error {
	writeAPI := s.client.WriteAPIBlocking(s.org, s.bucket)

	for _, sample := range samples {
		point := influxdb2.NewPoint(
			s.measurement,
			map[string]string{
				"bus":     sample.Bus,
				"display": sample.Display,
			},
			map[string]interface{}{
				"temperature": sample.Temperature,
				"fan_speed":   sample.Speed,
				"band_min":    sample.MinSpeed,
				"band_max":    sample.MaxSpeed,
				"changed":     sample.Changed,
			},
			sample.Time,
		)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := writeAPI.WritePoint(ctx, point)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to write sample for GPU %s: %w", sample.Bus, err)
		}
	}
	return nil
}

func (s *InfluxDBSink) Close() error {
	s.client.Close()
	return nil
}
