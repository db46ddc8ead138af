// Command replay feeds a captured PS/2 byte stream from a serial test
// rig through the decoder, for debugging a scan-code sequence outside
// the firmware. Subcommand flag-set style grounded on
// cmd/picosign/main.go.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/tarm/serial"

	"kb2ble.dev/ps2"
)

var (
	replayCmd = flag.NewFlagSet("replay", flag.ExitOnError)
	port      = replayCmd.String("port", "/dev/ttyUSB0", "serial port the PS/2-to-UART test rig is attached to")
	baud      = replayCmd.Int("baud", 115200, "serial baud rate")
	dumpPath  = replayCmd.String("dump", "", "write a CBOR diagnostics snapshot here on exit")
)

func main() {
	if len(os.Args) <= 1 {
		fmt.Fprintln(os.Stderr, "replay: specify the 'replay' command")
		os.Exit(2)
	}
	var err error
	switch cmd := os.Args[1]; cmd {
	case "replay":
		replayCmd.Parse(os.Args[2:])
		err = replay()
	default:
		fmt.Fprintf(os.Stderr, "replay: unknown command: %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
}

func replay() error {
	cfg := &serial.Config{Name: *port, Baud: *baud, ReadTimeout: 50 * time.Millisecond}
	s, err := serial.OpenPort(cfg)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer s.Close()

	var matrix ps2.Matrix
	decoder := &ps2.Decoder{}
	src := &serialSource{r: s}
	for !src.eof {
		decoder.MatrixScan(src, &matrix)
		if matrix.AnyModifiedSinceLastScan() {
			snap := matrix.Snapshot()
			log.Printf("matrix: %s", hex.EncodeToString(snap[:]))
		}
	}
	if *dumpPath != "" {
		return dumpSnapshot(*dumpPath, &matrix)
	}
	return nil
}

// serialSource implements ps2.ByteSource over a serial port opened
// with a short read timeout, so a timed-out read (no byte this tick)
// reports ok=false rather than blocking the outer loop.
type serialSource struct {
	r   io.Reader
	eof bool
}

func (s *serialSource) Recv() (byte, bool) {
	var b [1]byte
	n, err := s.r.Read(b[:])
	if err == io.EOF {
		s.eof = true
	}
	if n == 0 {
		return 0, false
	}
	return b[0], true
}

func (s *serialSource) Err() bool { return false }
