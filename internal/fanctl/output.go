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

package fanctl

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/xlab/treeprint"

	"GpuFanD/internal/curve"
	"GpuFanD/internal/fand"
	"GpuFanD/internal/nvidia"
	"GpuFanD/internal/util"
)

func showGpus() error {
	devices, err := nvidia.NewSMI().Devices()
	if err != nil {
		return err
	}

	if FlagJson {
		out, err := json.MarshalIndent(struct {
			Gpus []nvidia.Device `json:"gpus"`
		}{Gpus: devices}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if FlagTree {
		tree := treeprint.NewWithRoot("GPUs")
		for _, d := range devices {
			branch := tree.AddBranch(fmt.Sprintf("[%d] %s", d.Index, d.Name))
			branch.AddNode("Bus: " + d.BusID)
			branch.AddNode(fmt.Sprintf("Temperature: %s", naIfNegative(d.Temperature, "C")))
			branch.AddNode(fmt.Sprintf("Fan: %s", naIfNegative(d.FanSpeed, "%")))
			branch.AddNode(fmt.Sprintf("Utilization: %s", naIfNegative(d.Utilization, "%")))
		}
		fmt.Print(tree.String())
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	util.SetBorderlessTable(table)
	table.SetHeader([]string{"INDEX", "NAME", "BUS", "TEMP", "FAN", "UTIL"})
	for _, d := range devices {
		table.Append([]string{
			strconv.Itoa(d.Index),
			d.Name,
			d.BusID,
			naIfNegative(d.Temperature, "C"),
			naIfNegative(d.FanSpeed, "%"),
			naIfNegative(d.Utilization, "%"),
		})
	}
	table.Render()
	return nil
}

func showCurve() error {
	cfg, err := util.LoadConfig(FlagConfigFilePath, true)
	if err != nil {
		return err
	}

	crv, err := curve.New(cfg.Curve.TempLow, cfg.Curve.TempHigh, cfg.Curve.SpeedLow, cfg.Curve.SpeedHigh)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	util.SetBorderTable(table)
	table.SetHeader([]string{"TEMP (C)", "MIN SPEED (%)", "MAX SPEED (%)"})
	for _, row := range crv.Table(FlagStep) {
		table.Append([]string{
			strconv.Itoa(row.Temp),
			strconv.Itoa(row.MinSpeed),
			strconv.Itoa(row.MaxSpeed),
		})
	}
	table.Render()
	return nil
}

func showStatus() error {
	cfg, err := util.LoadConfig(FlagConfigFilePath, true)
	if err != nil {
		return err
	}

	// Three missed intervals means the daemon is gone or wedged.
	status, err := fand.ReadStatus(cfg.StatusFilePath, 3*cfg.PollInterval())
	if err != nil {
		return fmt.Errorf("no daemon status (is gpufand running?): %w", err)
	}

	fmt.Printf("Updated: %s (pid %d)\n", status.UpdatedAt.Format(time.RFC1123), status.Pid)
	if status.Stale {
		fmt.Println("WARNING: status is stale, the daemon may not be running")
	}

	table := tablewriter.NewWriter(os.Stdout)
	util.SetBorderlessTable(table)
	table.SetHeader([]string{"BUS", "DISPLAY", "TEMP", "BAND", "SPEED"})
	for _, g := range status.Gpus {
		table.Append([]string{
			g.Bus,
			g.Display,
			fmt.Sprintf("%dC", g.Temperature),
			fmt.Sprintf("%d%%-%d%%", g.BandMin, g.BandMax),
			fmt.Sprintf("%d%%", g.Speed),
		})
	}
	table.Render()
	return nil
}

func naIfNegative(v int, unit string) string {
	if v < 0 {
		return "N/A"
	}
	return strconv.Itoa(v) + unit
}
