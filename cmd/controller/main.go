// Command controller is the firmware for a PS/2-to-BLE keyboard
// adapter: it decodes a PS/2 Scan Code Set 2 byte stream into a key
// matrix and forwards changes to a host over Bluetooth LE through an
// Adafruit Bluefruit LE SPI Friend coprocessor.
//
// The keymap/layer/macro engine that turns matrix positions into HID
// usage codes is an external collaborator, out of scope for this
// firmware core; translate.go carries only a small illustrative
// keymap so this binary is runnable end to end.
package main

import "log"

func main() {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	log.Println("kb2ble: starting")
	p, err := Init()
	if err != nil {
		log.Fatalf("kb2ble: init: %v", err)
	}
	run(p)
}

// run is the firmware's outer loop, itself an external collaborator
// this core only illustrates: it alternates one PS/2 matrix scan with
// one BLE transport tick. Neither call may block longer than its
// documented timeout, so no further scheduling is needed beyond this
// loop.
func run(p *Platform) {
	p.Transport.HardwareReset()
	for {
		p.Decoder.MatrixScan(p.Source, &p.Matrix)
		if p.Matrix.AnyModifiedSinceLastScan() {
			translate(&p.Matrix, p.Transport)
		}
		p.Transport.Task()
	}
}
