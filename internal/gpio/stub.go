//go:build !linux

package gpio

import "errors"

// Bias selects the input line bias.
type Bias string

const (
	BiasPullUp   Bias = "pull-up"
	BiasPullDown Bias = "pull-down"
	BiasDisabled Bias = "disabled"
)

// CdevOptions configures a CdevChip.
type CdevOptions struct {
	Chip      string
	Consumer  string
	ActiveLow bool
	Bias      Bias
	Offsets   map[int]int
}

// CdevChip is not available on non-Linux platforms.
type CdevChip struct{}

// NewCdevChip returns an error on non-Linux platforms.
func NewCdevChip(CdevOptions) (*CdevChip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Output is not implemented on non-Linux platforms.
func (c *CdevChip) Output(int, bool) (OutputPin, error) {
	return nil, errors.New("gpio: not supported")
}

// Input is not implemented on non-Linux platforms.
func (c *CdevChip) Input(int, func()) (InputPin, error) {
	return nil, errors.New("gpio: not supported")
}

// Errors always reports zero on non-Linux platforms.
func (c *CdevChip) Errors() uint64 {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (c *CdevChip) Close() error {
	return nil
}
