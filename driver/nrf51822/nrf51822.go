// Package nrf51822 is the low-level SDEP driver for the Nordic
// nRF51822 BLE coprocessor behind an Adafruit Bluefruit LE SPI Friend
// module, named after the physical part it drives.
//
// It owns only framing and the hardware reset pulse; the AT command
// fragmentation/reassembly protocol is implemented one layer up in
// package ble, because it is coupled to the response ring that this
// package has no knowledge of.
package nrf51822

import (
	"time"

	"kb2ble.dev/driver/sdep"
)

// Default SDEP timeouts.
const (
	CommandTimeout = 150 * time.Millisecond
	PollTimeout    = 10 * time.Millisecond
)

// Device is a BLE coprocessor reachable over SDEP, plus its reset pin.
type Device struct {
	Framer *sdep.Framer
	Reset  sdep.Pin
}

// HardwareReset pulses the coprocessor's reset line: high, low, wait
// 10ms, high, wait 1000ms. There is no success probe — the caller's
// transport state is marked initialized unconditionally.
func (d *Device) HardwareReset() {
	d.Reset.High()
	d.Reset.Low()
	time.Sleep(10 * time.Millisecond)
	d.Reset.High()
	time.Sleep(1000 * time.Millisecond)
}

// SendFragment sends a single SDEP command fragment.
func (d *Device) SendFragment(payload []byte, more bool, timeout time.Duration) error {
	f, err := sdep.NewATFrame(payload, more)
	if err != nil {
		return err
	}
	return d.Framer.Send(f, timeout)
}

// ReceiveFrame polls for and returns one SDEP frame, used by the
// response-drain loop for both Response-typed payload reassembly and
// reply-free polling.
func (d *Device) ReceiveFrame(timeout time.Duration) (sdep.Frame, error) {
	return d.Framer.Receive(timeout)
}

// IRQHigh reports whether the coprocessor currently has data pending,
// without committing to a read.
func (d *Device) IRQHigh() bool {
	return d.Framer.IRQ.Get()
}
