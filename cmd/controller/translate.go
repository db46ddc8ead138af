package main

import (
	"kb2ble.dev/ble"
	"kb2ble.dev/ps2"
)

// translate is a deliberately small placeholder for a keymap/layer/
// macro engine, which lives outside this firmware core as an external
// collaborator. It maps a handful of alphanumeric and modifier
// positions directly to USB HID usage codes and enqueues a single key
// report, so the example binary is runnable end to end; a real
// keyboard wants a full keymap table with layers, supplied by that
// external component.
func translate(m *ps2.Matrix, t *ble.Transport) {
	modifier, keys := report(m)
	t.Enqueue(ble.KeyReport{Modifier: modifier, Keys: keys})
}

// report builds the HID key report for the matrix's currently held
// keys using the small illustrative keymap below.
func report(m *ps2.Matrix) (modifier byte, keys [6]byte) {
	n := 0
	for pos, hid := range illustrativeKeymap {
		row, col := int(pos)>>3, int(pos)&7
		if !m.IsOn(row, col) {
			continue
		}
		switch hid {
		case hidLeftCtrl:
			modifier |= 0x01
		case hidLeftShift:
			modifier |= 0x02
		case hidLeftAlt:
			modifier |= 0x04
		default:
			if n < len(keys) {
				keys[n] = hid
				n++
			}
		}
	}
	return modifier, keys
}

// A minimal subset of USB HID keyboard usage codes (as referenced by
// the AT+BLEKEYBOARDCODE wire format), enough to illustrate wiring.
const (
	hidA         = 0x04
	hidB         = 0x05
	hidLeftCtrl  = 0xe0
	hidLeftShift = 0xe1
	hidLeftAlt   = 0xe2
)

// illustrativeKeymap maps a few PS/2 positions (row<<3|col) to HID
// usage codes.
var illustrativeKeymap = map[ps2.Position]byte{
	0x1C: hidA,
	0x32: hidB,
	0x14: hidLeftCtrl,
	0x12: hidLeftShift,
	0x11: hidLeftAlt,
}
