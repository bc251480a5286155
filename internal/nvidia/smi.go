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
	"strconv"
	"strings"
)

const (
	smiBin    = "nvidia-smi"
	gpuArg    = "-i"
	queryArg  = "--query-gpu="
	formatArg = "--format=csv,noheader,nounits"
)

// Device is one row of the nvidia-smi device inventory.
type Device struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	BusID       string `json:"bus_id"`
	Temperature int    `json:"temperature"`
	FanSpeed    int    `json:"fan_speed"`
	Utilization int    `json:"utilization"`
}

// SMI queries GPU state through the nvidia-smi binary.
type SMI struct {
	bin string
	run RunFunc
}

func NewSMI() *SMI {
	return &SMI{bin: smiBin, run: runCommand}
}

// NewSMIWithRunner is used by tests to substitute command execution.
func NewSMIWithRunner(run RunFunc) *SMI {
	return &SMI{bin: smiBin, run: run}
}

// Buses returns the PCI bus IDs of all installed GPUs, in nvidia-smi
// enumeration order.
func (s *SMI) Buses() ([]string, error) {
	out, err := s.run(nil, s.bin, queryArg+"pci.bus_id", formatArg)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate GPUs: %w", err)
	}

	var buses []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		buses = append(buses, line)
	}
	if len(buses) == 0 {
		return nil, fmt.Errorf("nvidia-smi reported no GPUs")
	}
	return buses, nil
}

// Temperature reads the core temperature in degrees Celsius of the GPU
// at the given PCI bus ID.
func (s *SMI) Temperature(bus string) (int, error) {
	out, err := s.run(nil, s.bin, queryArg+"temperature.gpu", formatArg, gpuArg, bus)
	if err != nil {
		return 0, fmt.Errorf("failed to read temperature of GPU %s: %w", bus, err)
	}

	text := strings.TrimSpace(string(out))
	temp, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("unexpected temperature output for GPU %s: %q", bus, text)
	}
	return temp, nil
}

// Devices returns the full device inventory used by the inspection CLI.
func (s *SMI) Devices() ([]Device, error) {
	out, err := s.run(nil, s.bin,
		queryArg+"index,name,pci.bus_id,temperature.gpu,fan.speed,utilization.gpu", formatArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query GPU inventory: %w", err)
	}

	var devices []Device
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 6 {
			return nil, fmt.Errorf("unexpected nvidia-smi inventory row: %q", line)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		index, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("bad GPU index in row %q: %w", line, err)
		}

		dev := Device{
			Index: index,
			Name:  fields[1],
			BusID: fields[2],
		}
		// Temperature, fan speed and utilization may be reported as
		// "[N/A]" on some boards. Treat those as -1.
		dev.Temperature = atoiOrMinusOne(fields[3])
		dev.FanSpeed = atoiOrMinusOne(fields[4])
		dev.Utilization = atoiOrMinusOne(fields[5])

		devices = append(devices, dev)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("nvidia-smi reported no GPUs")
	}
	return devices, nil
}

func atoiOrMinusOne(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return v
}
