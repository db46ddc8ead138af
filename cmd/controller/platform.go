package main

import (
	"kb2ble.dev/ble"
	"kb2ble.dev/ps2"
)

// Platform bundles the components the outer loop in main.go drives.
// Source and Transport are wired differently per build target
// (platform_sh2.go, platform_rpi.go, platform_dummy.go); Matrix and
// Decoder are plain values shared by all of them.
type Platform struct {
	Matrix    ps2.Matrix
	Decoder   *ps2.Decoder
	Source    ps2.ByteSource
	Transport *ble.Transport
}
