package main

import (
	"os"

	"github.com/fxamacker/cbor/v2"

	"kb2ble.dev/ble"
	"kb2ble.dev/ps2"
)

// snapshot is a diagnostics dump: a CBOR encoding of the matrix bitmap
// and transport status, for offline inspection after a replay run. It
// is host-tool output, never firmware-persisted state — the firmware
// itself still has no persisted state.
type snapshot struct {
	Matrix    [32]byte
	Transport ble.State
}

// dumpSnapshot writes a CBOR-encoded snapshot of m to path. This tool
// only decodes a captured PS/2 stream, so Transport is always its zero
// value here.
func dumpSnapshot(path string, m *ps2.Matrix) error {
	s := snapshot{Matrix: m.Snapshot()}
	data, err := cbor.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
