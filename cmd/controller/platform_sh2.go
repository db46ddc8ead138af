//go:build tinygo && rp

package main

import (
	"fmt"
	"machine"

	"kb2ble.dev/ble"
	"kb2ble.dev/driver/i8042bus"
	"kb2ble.dev/driver/nrf51822"
	"kb2ble.dev/driver/sdep"
	"kb2ble.dev/ps2"
)

// Pin assignments, grounded on platform_sh2.go's constant block
// naming convention (upper-snake, signal-named rather than numbered).
const (
	PS2_CLK = machine.GPIO2
	PS2_DAT = machine.GPIO3

	BLE_SCK = machine.GPIO18
	BLE_SDO = machine.GPIO19
	BLE_SDI = machine.GPIO20
	BLE_CS  = machine.GPIO21
	BLE_IRQ = machine.GPIO22
	BLE_RST = machine.GPIO26
)

// clockPin adapts a machine.Pin to i8042bus.ClockPin: the tinygo API
// passes the triggering pin to the callback and returns a
// configuration error, neither of which the PS/2 bit-shift handler
// needs.
type clockPin machine.Pin

func (p clockPin) SetInterrupt(handler func()) {
	if err := machine.Pin(p).SetInterrupt(machine.PinFalling, func(machine.Pin) { handler() }); err != nil {
		panic(fmt.Sprintf("kb2ble: PS/2 clock interrupt: %v", err))
	}
}

func Init() (*Platform, error) {
	PS2_CLK.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	PS2_DAT.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	var bus i8042bus.Bus
	bus.Data = PS2_DAT
	bus.Attach(clockPin(PS2_CLK))

	if err := machine.SPI0.Configure(machine.SPIConfig{
		Frequency: 4_000_000,
		Mode:      0,
		SCK:       BLE_SCK,
		SDO:       BLE_SDO,
		SDI:       BLE_SDI,
	}); err != nil {
		return nil, fmt.Errorf("kb2ble: BLE SPI: %w", err)
	}
	BLE_CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	BLE_CS.High()
	BLE_IRQ.Configure(machine.PinConfig{Mode: machine.PinInput})
	BLE_RST.Configure(machine.PinConfig{Mode: machine.PinOutput})
	BLE_RST.High()

	dev := &nrf51822.Device{
		Framer: &sdep.Framer{Bus: machine.SPI0, CS: BLE_CS, IRQ: BLE_IRQ},
		Reset:  BLE_RST,
	}
	p := &Platform{
		Source: &bus,
		Transport: &ble.Transport{
			Dev:         dev,
			Product:     "kb2ble",
			Description: "PS/2 adapter",
		},
	}
	p.Decoder = &ps2.Decoder{Notify: p.Transport}
	return p, nil
}
