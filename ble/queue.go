package ble

import "fmt"

// QueueItem is the tagged sum type carried by SendRing, modelled as a
// small closed interface instead of a struct with an embedded
// discriminant.
type QueueItem interface {
	isQueueItem()
	added() uint16
}

// KeyReport is a boot-protocol HID keyboard report: modifier byte plus
// up to six simultaneously pressed key codes. Layout grounded on
// other_examples/4498dbc6_sanjay900-VIIPER__device-keyboard-inputstate.go.go's
// 8-byte boot report (modifier, reserved, 6 keys).
type KeyReport struct {
	Modifier byte
	Keys     [6]byte
	Added    uint16
}

func (KeyReport) isQueueItem()    {}
func (k KeyReport) added() uint16 { return k.Added }

// Consumer is an HID consumer-control usage code (volume, media keys).
type Consumer struct {
	Code  uint16
	Added uint16
}

func (Consumer) isQueueItem()    {}
func (c Consumer) added() uint16 { return c.Added }

// MouseMove is an optional relative pointer report. Button bit layout
// grounded on
// other_examples/709ff4e5_sanjay900-VIIPER__device-mouse-inputstate.go.go:
// bit 0 left, bit 1 right, bit 2 middle.
type MouseMove struct {
	DX, DY, Scroll, Pan int8
	Buttons             byte
	Added               uint16
}

func (MouseMove) isQueueItem()    {}
func (m MouseMove) added() uint16 { return m.Added }

const (
	mouseButtonLeft   = 0b001
	mouseButtonRight  = 0b010
	mouseButtonMiddle = 0b100
)

// formatKeyboardCode renders the exact AT+BLEKEYBOARDCODE wire format.
func formatKeyboardCode(k KeyReport) string {
	return fmt.Sprintf("AT+BLEKEYBOARDCODE=%02x-00-%02x-%02x-%02x-%02x-%02x-%02x",
		k.Modifier, k.Keys[0], k.Keys[1], k.Keys[2], k.Keys[3], k.Keys[4], k.Keys[5])
}

// formatControlKey renders AT+BLEHIDCONTROLKEY for a consumer report.
func formatControlKey(c Consumer) string {
	return fmt.Sprintf("AT+BLEHIDCONTROLKEY=0x%04x", c.Code)
}

// formatMouseMove renders AT+BLEHIDMOUSEMOVE for a pointer report.
func formatMouseMove(m MouseMove) string {
	return fmt.Sprintf("AT+BLEHIDMOUSEMOVE=%d,%d,%d,%d", m.DX, m.DY, m.Scroll, m.Pan)
}

// formatMouseButton renders AT+BLEHIDMOUSEBUTTON: set bits are
// rendered as L, R, M in that order, concatenated, or "0" if no button
// is down.
func formatMouseButton(m MouseMove) string {
	var s []byte
	if m.Buttons&mouseButtonLeft != 0 {
		s = append(s, 'L')
	}
	if m.Buttons&mouseButtonRight != 0 {
		s = append(s, 'R')
	}
	if m.Buttons&mouseButtonMiddle != 0 {
		s = append(s, 'M')
	}
	if len(s) == 0 {
		s = []byte{'0'}
	}
	return "AT+BLEHIDMOUSEBUTTON=" + string(s)
}
