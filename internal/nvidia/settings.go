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

package nvidia

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

const settingsBin = "nvidia-settings"

// Fan control attributes understood by the nvidia driver. Each throwaway
// X server sees exactly one GPU, so the local indices are always 0.
const (
	attrFanControlOn  = "[gpu:0]/GPUFanControlState=1"
	attrFanControlOff = "[gpu:0]/GPUFanControlState=0"
	attrFanSpeedFmt   = "[fan:0]/GPUTargetFanSpeed=%d"
)

// Settings issues nvidia-settings attribute assignments against a
// specific X display.
type Settings struct {
	bin string
	run RunFunc
}

func NewSettings() *Settings {
	return &Settings{bin: settingsBin, run: runCommand}
}

// NewSettingsWithRunner is used by tests to substitute command execution.
func NewSettingsWithRunner(run RunFunc) *Settings {
	return &Settings{bin: settingsBin, run: run}
}

// Assign sets a single driver attribute on the given display.
func (s *Settings) Assign(display, attribute string) error {
	_, err := s.run([]string{"DISPLAY=" + display}, s.bin, "-a", attribute)
	if err != nil {
		return fmt.Errorf("failed to assign %s on display %s: %w", attribute, display, err)
	}
	log.Debugf("Assigned %s on display %s", attribute, display)
	return nil
}

// EnableFanControl detaches the fan from the driver's automatic curve.
func (s *Settings) EnableFanControl(display string) error {
	return s.Assign(display, attrFanControlOn)
}

// ReleaseFanControl hands the fan back to the driver.
func (s *Settings) ReleaseFanControl(display string) error {
	return s.Assign(display, attrFanControlOff)
}

// SetFanSpeed commands an absolute fan speed in percent. Fan control must
// have been enabled on the display first.
func (s *Settings) SetFanSpeed(display string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("fan speed %d%% out of range [0, 100]", percent)
	}
	return s.Assign(display, fmt.Sprintf(attrFanSpeedFmt, percent))
}
