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

package fand

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"GpuFanD/internal/metrics"
)

// StatusWriter publishes the newest tick to a JSON file so gpufanctl can
// show daemon state without talking to the driver (or running as root).
type StatusWriter struct {
	path string
}

func NewStatusWriter(path string) *StatusWriter {
	return &StatusWriter{path: path}
}

// WriteStatus replaces the status file atomically via rename, so readers
// never observe a half-written file.
func (w *StatusWriter) WriteStatus(now time.Time, samples []metrics.Sample) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create status dir: %w", err)
	}

	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "updated_at", now.Format(time.RFC3339)); err != nil {
		return err
	}
	if body, err = sjson.SetBytes(body, "pid", os.Getpid()); err != nil {
		return err
	}
	for i, s := range samples {
		prefix := fmt.Sprintf("gpus.%d.", i)
		for key, value := range map[string]interface{}{
			"bus":         s.Bus,
			"display":     s.Display,
			"temperature": s.Temperature,
			"band_min":    s.MinSpeed,
			"band_max":    s.MaxSpeed,
			"speed":       s.Speed,
		} {
			if body, err = sjson.SetBytes(body, prefix+key, value); err != nil {
				return err
			}
		}
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move status file into place: %w", err)
	}
	return nil
}

// GpuStatus is one GPU entry read back from the status file.
type GpuStatus struct {
	Bus         string
	Display     string
	Temperature int
	BandMin     int
	BandMax     int
	Speed       int
}

// Status is the decoded content of the daemon's status file.
type Status struct {
	UpdatedAt time.Time
	Pid       int
	Stale     bool
	Gpus      []GpuStatus
}

// ReadStatus loads and decodes the status file. The result is marked
// stale when the file has not been refreshed within maxAge.
func ReadStatus(path string, maxAge time.Duration) (*Status, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read status file %s: %w", path, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("status file %s is not valid JSON", path)
	}

	updated, err := time.Parse(time.RFC3339, gjson.GetBytes(body, "updated_at").String())
	if err != nil {
		return nil, fmt.Errorf("status file %s has a bad timestamp: %w", path, err)
	}

	status := &Status{
		UpdatedAt: updated,
		Pid:       int(gjson.GetBytes(body, "pid").Int()),
		Stale:     time.Since(updated) > maxAge,
	}

	for _, entry := range gjson.GetBytes(body, "gpus").Array() {
		status.Gpus = append(status.Gpus, GpuStatus{
			Bus:         entry.Get("bus").String(),
			Display:     entry.Get("display").String(),
			Temperature: int(entry.Get("temperature").Int()),
			BandMin:     int(entry.Get("band_min").Int()),
			BandMax:     int(entry.Get("band_max").Int()),
			Speed:       int(entry.Get("speed").Int()),
		})
	}
	return status, nil
}
