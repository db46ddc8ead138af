//go:build linux && arm

package main

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/bcm283x"

	"kb2ble.dev/ble"
	"kb2ble.dev/driver/i8042bus"
	"kb2ble.dev/driver/nrf51822"
	"kb2ble.dev/driver/sdep"
	"kb2ble.dev/ps2"
)

// Pin assignments, grounded on lcd/lcd.go and input/input.go's
// bcm283x.GPIOn constant style.
var (
	psClk = bcm283x.GPIO17
	psDat = bcm283x.GPIO27

	bleCS  = bcm283x.GPIO8
	bleIRQ = bcm283x.GPIO25
	bleRST = bcm283x.GPIO24
)

// periphClockEdge adapts a periph.io gpio.PinIn to i8042bus.ClockPin by
// spawning a goroutine that blocks on WaitForEdge, the same pattern
// input/input.go uses for its debounced buttons — host-side glue is
// allowed to use goroutines even though the firmware core is not.
type periphClockEdge struct {
	pin gpio.PinIn
}

func (p periphClockEdge) SetInterrupt(handler func()) {
	go func() {
		for {
			if p.pin.WaitForEdge(-1) {
				handler()
			}
		}
	}()
}

// periphLevel adapts a periph.io gpio.PinIO to sdep.Pin/i8042bus.DataPin.
type periphLevel struct {
	pin gpio.PinIO
}

func (p periphLevel) High()     { p.pin.Out(gpio.High) }
func (p periphLevel) Low()      { p.pin.Out(gpio.Low) }
func (p periphLevel) Get() bool { return p.pin.Read() == gpio.High }

// periphSPIBus adapts a periph.io spi.Conn's buffer-oriented Tx to the
// single-byte Transfer shape sdep.Framer drives.
type periphSPIBus struct {
	conn spi.Conn
}

func (b periphSPIBus) Transfer(tx byte) (byte, error) {
	w := [1]byte{tx}
	var r [1]byte
	if err := b.conn.Tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func Init() (*Platform, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("kb2ble: %w", err)
	}
	if err := psClk.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("kb2ble: PS/2 clock pin: %w", err)
	}
	if err := psDat.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("kb2ble: PS/2 data pin: %w", err)
	}
	var bus i8042bus.Bus
	bus.Data = periphLevel{psDat}
	bus.Attach(periphClockEdge{psClk})

	// Use spireg's port registry to find the first available SPI bus,
	// as lcd.Open does for the display.
	port, err := spireg.Open("")
	if err != nil {
		return nil, fmt.Errorf("kb2ble: %w", err)
	}
	conn, err := port.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("kb2ble: %w", err)
	}
	if err := bleCS.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("kb2ble: BLE CS pin: %w", err)
	}
	if err := bleIRQ.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("kb2ble: BLE IRQ pin: %w", err)
	}
	if err := bleRST.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("kb2ble: BLE reset pin: %w", err)
	}

	dev := &nrf51822.Device{
		Framer: &sdep.Framer{
			Bus: periphSPIBus{conn},
			CS:  periphLevel{bleCS},
			IRQ: periphLevel{bleIRQ},
		},
		Reset: periphLevel{bleRST},
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
