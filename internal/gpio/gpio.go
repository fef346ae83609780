// Package gpio provides board line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Port is a group of up to PortWidth lines that share one pin-change
// interrupt enable.
type Port uint8

const (
	PortNone Port = iota // unbound
	PortB                // lines 8-13
	PortC                // lines 14-19 (analog capable)
	PortD                // lines 0-7
)

// PortWidth is the number of bits in a port.
const PortWidth = 8

// NumLines is the number of physical lines on the board header (0-19).
const NumLines = 20

func (p Port) String() string {
	switch p {
	case PortB:
		return "B"
	case PortC:
		return "C"
	case PortD:
		return "D"
	default:
		return "none"
	}
}

// Resolve maps a physical line number onto its port and bit.
// Lines outside 0-19 resolve to PortNone and ok=false.
func Resolve(line int) (port Port, bit uint8, ok bool) {
	switch {
	case line >= 0 && line <= 7:
		return PortD, uint8(line), true
	case line >= 8 && line <= 13:
		return PortB, uint8(line - 8), true
	case line >= 14 && line <= 19:
		return PortC, uint8(line - 14), true
	default:
		return PortNone, 0, false
	}
}

// Chip hands out hardware lines by physical line number.
type Chip interface {
	// Output requests line as an output driven to initial.
	Output(line int, initial bool) (OutputPin, error)

	// Input requests line as an input. onEdge is called from the
	// chip's event context on every edge, rising or falling. It must not block.
	Input(line int, onEdge func()) (InputPin, error)

	// Close releases the chip.
	Close() error
}

// OutputPin drives a single line. Set never fails from the caller's view.
type OutputPin interface {
	Set(active bool)

	// Close drives the line inactive and releases it.
	Close() error
}

// InputPin reads a single line.
type InputPin interface {
	// Get returns the live logical level.
	Get() bool

	// Close stops edge delivery and releases the line.
	Close() error
}
