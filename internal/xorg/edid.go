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

package xorg

// edid is the EDID of a DELL U2410. The nvidia driver refuses to bring up
// a screen without a connected monitor; feeding it this blob via the
// CustomEDID option convinces it a display is attached to each GPU.
var edid = []byte{
	0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00,
	0x10, 0xac, 0x15, 0xf0, 0x4c, 0x54, 0x41, 0x35,
	0x2e, 0x13, 0x01, 0x03, 0x80, 0x34, 0x20, 0x78,
	0xee, 0x1e, 0xc5, 0xae, 0x4f, 0x34, 0xb1, 0x26,
	0x0e, 0x50, 0x54, 0xa5, 0x4b, 0x00, 0x81, 0x80,
	0xa9, 0x40, 0xd1, 0x00, 0x71, 0x4f, 0x01, 0x01,
	0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x28, 0x3c,
	0x80, 0xa0, 0x70, 0xb0, 0x23, 0x40, 0x30, 0x20,
	0x36, 0x00, 0x06, 0x44, 0x21, 0x00, 0x00, 0x1a,
	0x00, 0x00, 0x00, 0xff, 0x00, 0x43, 0x35, 0x39,
	0x32, 0x4d, 0x39, 0x42, 0x39, 0x35, 0x41, 0x54,
	0x4c, 0x0a, 0x00, 0x00, 0x00, 0xfc, 0x00, 0x44,
	0x45, 0x4c, 0x4c, 0x20, 0x55, 0x32, 0x34, 0x31,
	0x30, 0x0a, 0x20, 0x20, 0x00, 0x00, 0x00, 0xfd,
	0x00, 0x38, 0x4c, 0x1e, 0x51, 0x11, 0x00, 0x0a,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x00, 0x1d,
}

// EDID returns a copy of the synthetic monitor EDID blob.
func EDID() []byte {
	out := make([]byte, len(edid))
	copy(out, edid)
	return out
}
