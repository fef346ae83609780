//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// Bias selects the input line bias.
type Bias string

const (
	BiasPullUp   Bias = "pull-up"
	BiasPullDown Bias = "pull-down"
	BiasDisabled Bias = "disabled"
)

// CdevOptions configures a CdevChip.
type CdevOptions struct {
	Chip      string      // e.g. "gpiochip0"
	Consumer  string      // label shown by gpioinfo
	ActiveLow bool        // invert logical level of inputs
	Bias      Bias        // input bias
	Offsets   map[int]int // physical line -> chip offset; identity when absent
}

// CdevChip drives lines through the Linux GPIO character device.
type CdevChip struct {
	chip *gpiocdev.Chip
	opts CdevOptions
	errs atomic.Uint64
}

// NewCdevChip opens the named GPIO chip.
func NewCdevChip(opts CdevOptions) (*CdevChip, error) {
	var chipOpts []gpiocdev.ChipOption
	if opts.Consumer != "" {
		chipOpts = append(chipOpts, gpiocdev.WithConsumer(opts.Consumer))
	}
	chip, err := gpiocdev.NewChip(opts.Chip, chipOpts...)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &CdevChip{chip: chip, opts: opts}, nil
}

func (c *CdevChip) offset(line int) int {
	if off, ok := c.opts.Offsets[line]; ok {
		return off
	}
	return line
}

// Output requests line as an output.
func (c *CdevChip) Output(line int, initial bool) (OutputPin, error) {
	l, err := c.chip.RequestLine(c.offset(line), gpiocdev.AsOutput(boolToInt(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output line %d: %w", line, err)
	}
	return &cdevOutput{line: l, errs: &c.errs}, nil
}

// Input requests line as an input reporting both edges to onEdge.
func (c *CdevChip) Input(line int, onEdge func()) (InputPin, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			if onEdge != nil {
				onEdge()
			}
		}),
	}
	switch c.opts.Bias {
	case BiasPullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case BiasPullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	case BiasDisabled:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	if c.opts.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	l, err := c.chip.RequestLine(c.offset(line), opts...)
	if err != nil {
		return nil, fmt.Errorf("request input line %d: %w", line, err)
	}
	return &cdevInput{line: l, errs: &c.errs}, nil
}

// Errors returns the number of line reads or writes the kernel rejected.
func (c *CdevChip) Errors() uint64 {
	return c.errs.Load()
}

// Close releases the chip. Lines must be closed first.
func (c *CdevChip) Close() error {
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

type cdevOutput struct {
	line *gpiocdev.Line
	errs *atomic.Uint64
}

func (o *cdevOutput) Set(active bool) {
	if err := o.line.SetValue(boolToInt(active)); err != nil {
		o.errs.Add(1)
	}
}

// Close drives the line low and reconfigures it as an input, so the pin is
// left in its boot default.
func (o *cdevOutput) Close() error {
	var errs []error
	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive line inactive: %w", err))
	}
	if err := o.line.Reconfigure(gpiocdev.AsInput); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

type cdevInput struct {
	line *gpiocdev.Line
	errs *atomic.Uint64
}

func (i *cdevInput) Get() bool {
	v, err := i.line.Value()
	if err != nil {
		i.errs.Add(1)
		return false
	}
	return v == 1
}

func (i *cdevInput) Close() error {
	if err := i.line.Close(); err != nil {
		return fmt.Errorf("close line: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
