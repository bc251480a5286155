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

// Package nvidia wraps the vendor command line tools (nvidia-smi and
// nvidia-settings) behind small typed interfaces. All process execution
// goes through a RunFunc so tests can substitute canned output.
package nvidia

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RunFunc executes a command with the given extra environment and returns
// its combined stdout/stderr. The real implementation is runCommand.
type RunFunc func(env []string, name string, args ...string) ([]byte, error)

func runCommand(env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	// The throwaway X servers make nvidia-settings emit harmless auth
	// warnings on stderr. Folding stderr into the captured output keeps
	// them out of the daemon's own stderr while preserving them for
	// error reports.
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %s: %w (output: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}
