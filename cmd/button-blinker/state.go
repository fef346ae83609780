package main

import (
	"fmt"
	"io"

	"github.com/sweeney/button-blinker/internal/config"
	"github.com/sweeney/button-blinker/internal/gpio"
)

// printState reads each configured input once and prints its level.
func printState(w io.Writer, chip gpio.Chip, cfg config.Config) error {
	for _, in := range []struct {
		name string
		line int
	}{
		{"input1", cfg.Lines.Input1},
		{"input2", cfg.Lines.Input2},
	} {
		if _, _, ok := gpio.Resolve(in.line); !ok {
			fmt.Fprintf(w, "%s (line %d): UNBOUND\n", in.name, in.line)
			continue
		}
		pin, err := chip.Input(in.line, nil)
		if err != nil {
			return fmt.Errorf("read %s: %w", in.name, err)
		}
		level := pin.Get()
		if err := pin.Close(); err != nil {
			return fmt.Errorf("release %s: %w", in.name, err)
		}
		fmt.Fprintf(w, "%s (line %d): %s\n", in.name, in.line, stateString(level))
	}
	return nil
}

func stateString(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "INACTIVE"
}
