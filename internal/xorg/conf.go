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

// Package xorg provisions one throwaway X server per GPU. The nvidia
// fan-control attributes are only reachable through a display context,
// so each GPU gets a minimal single-screen server with a synthetic EDID
// and the Coolbits option enabled.
package xorg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

// confTemplate is a single-screen server layout with a fake flat panel
// attached to the GPU at .BusID. Coolbits unlocks manual fan control.
const confTemplate = `Section "ServerLayout"
    Identifier     "Layout0"
    Screen      0  "Screen0"     0    0
EndSection

Section "Screen"
    Identifier     "Screen0"
    Device         "VideoCard0"
    Monitor        "Monitor0"
    DefaultDepth   8
    Option         "UseDisplayDevice" "DFP-0"
    Option         "ConnectedMonitor" "DFP-0"
    Option         "CustomEDID" "DFP-0:{{.EDIDPath}}"
    Option         "Coolbits" "{{.Coolbits}}"
    SubSection "Display"
                Depth   8
                Modes   "160x200"
    EndSubSection
EndSection

Section "ServerFlags"
    Option         "AllowEmptyInput" "on"
    Option         "Xinerama"        "off"
    Option         "SELinux"         "off"
EndSection

Section "Device"
    Identifier  "VideoCard0"
    Driver      "nvidia"
    Screen      0
    Option      "UseDisplayDevice" "DFP-0"
    Option      "ConnectedMonitor" "DFP-0"
    Option      "CustomEDID" "DFP-0:{{.EDIDPath}}"
    Option      "Coolbits" "{{.Coolbits}}"
    BusID       "PCI:{{.BusID}}"
EndSection

Section "Monitor"
    Identifier      "Monitor0"
    Vendorname      "Dummy Display"
    Modelname       "160x200"
EndSection
`

var confTmpl = template.Must(template.New("xorg.conf").Parse(confTemplate))

// DecimalizeBusID converts an nvidia-smi PCI bus ID to the decimal form
// the X server expects: the domain is dropped and each remaining hex
// component is converted to decimal, e.g. "00000000:0B:00.0" -> "11:0:0".
func DecimalizeBusID(bus string) (string, error) {
	parts := strings.Split(bus, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed PCI bus ID: %q", bus)
	}

	devFn := strings.Split(parts[2], ".")
	if len(devFn) != 2 {
		return "", fmt.Errorf("malformed PCI bus ID: %q", bus)
	}

	var out []string
	for _, p := range []string{parts[1], devFn[0], devFn[1]} {
		v, err := strconv.ParseUint(p, 16, 32)
		if err != nil {
			return "", fmt.Errorf("malformed PCI bus ID component %q in %q", p, bus)
		}
		out = append(out, strconv.FormatUint(v, 10))
	}
	return strings.Join(out, ":"), nil
}

// RenderConf renders the xorg.conf text for a GPU. edidPath is the file
// the EDID blob was written to; bus is the raw nvidia-smi bus ID.
func RenderConf(bus, edidPath string, coolbits int) (string, error) {
	decimal, err := DecimalizeBusID(bus)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	err = confTmpl.Execute(&b, struct {
		EDIDPath string
		Coolbits int
		BusID    string
	}{EDIDPath: edidPath, Coolbits: coolbits, BusID: decimal})
	if err != nil {
		return "", fmt.Errorf("failed to render xorg.conf for GPU %s: %w", bus, err)
	}
	return b.String(), nil
}

// WriteConf writes the EDID blob and the rendered xorg.conf for a GPU
// into a fresh temporary directory. It returns the config path and the
// directory, which the caller removes once the server has exited.
func WriteConf(bus string, coolbits int) (confPath, dir string, err error) {
	safe := strings.NewReplacer(":", "-", ".", "-").Replace(bus)
	dir, err = os.MkdirTemp("", "gpufand-"+safe+"-")
	if err != nil {
		return "", "", fmt.Errorf("failed to create config dir for GPU %s: %w", bus, err)
	}

	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	edidPath := filepath.Join(dir, "edid.bin")
	if err = os.WriteFile(edidPath, EDID(), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write EDID for GPU %s: %w", bus, err)
	}

	conf, err := RenderConf(bus, edidPath, coolbits)
	if err != nil {
		return "", "", err
	}

	confPath = filepath.Join(dir, "xorg.conf")
	if err = os.WriteFile(confPath, []byte(conf), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write xorg.conf for GPU %s: %w", bus, err)
	}
	return confPath, dir, nil
}
