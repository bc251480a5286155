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

package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// RunningAsRoot reports whether the process has an effective uid of 0.
// Driving Xorg and the fan-control attributes requires root.
func RunningAsRoot() bool {
	return unix.Geteuid() == 0
}

// CheckBinaries verifies that every required external tool is on PATH.
func CheckBinaries(names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("required binary %q not found in PATH", name)
		}
	}
	return nil
}

func RemoveFileIfExists(path string) bool {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			log.Errorf("Failed to remove file %s: %s", path, err.Error())
			return false
		}
	}
	return true
}

// WritePidFile records the daemon's pid so init scripts and the reload
// path can signal it.
func WritePidFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create pid file dir: %w", err)
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write pid file %s: %w", path, err)
	}
	return nil
}

// ReadPidFile returns the pid recorded at path.
func ReadPidFile(path string) (int, error) {
	out, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pid file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(string(trimNewline(out)))
	if err != nil {
		return 0, fmt.Errorf("pid file %s holds no pid: %w", path, err)
	}
	return pid, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r' || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return b
}
