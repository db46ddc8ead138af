//go:build !(tinygo && rp) && !(linux && arm)

package main

import (
	"kb2ble.dev/driver/nrf51822"
	"kb2ble.dev/driver/sdep"

	"kb2ble.dev/ble"
	"kb2ble.dev/ps2"
	"kb2ble.dev/ps2/ps2sim"
)

// noopPin satisfies sdep.Pin without any backing hardware, for
// development builds run on a workstation rather than the target
// board.
type noopPin struct{ state bool }

func (p *noopPin) High()     { p.state = true }
func (p *noopPin) Low()      { p.state = false }
func (p *noopPin) Get() bool { return p.state }

// deadBus always reports the coprocessor as not-ready, so a dummy
// build fails safe (every AT command times out) instead of
// fabricating replies.
type deadBus struct{}

func (deadBus) Transfer(byte) (byte, error) { return byte(sdep.TypeSlaveNotReady), nil }

// Init wires an idle simulated PS/2 source and an unreachable
// coprocessor, for building and exercising the outer loop on a
// workstation without any attached hardware.
func Init() (*Platform, error) {
	framer := &sdep.Framer{Bus: deadBus{}, CS: &noopPin{}, IRQ: &noopPin{}}
	dev := &nrf51822.Device{Framer: framer, Reset: &noopPin{}}
	p := &Platform{
		Source: ps2sim.New(),
		Transport: &ble.Transport{
			Dev:         dev,
			Product:     "kb2ble",
			Description: "dev",
		},
	}
	p.Decoder = &ps2.Decoder{Notify: p.Transport}
	return p, nil
}
