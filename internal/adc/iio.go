package adc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIOSampler reads raw conversions from a Linux industrial I/O device
// (e.g. /sys/bus/iio/devices/iio:device0) and rescales them to 10 bits.
type IIOSampler struct {
	Dir  string // device directory
	Bits int    // native resolution of the converter
}

// NewIIOSampler creates a sampler for the IIO device at dir with the given
// native resolution in bits (10 when zero).
func NewIIOSampler(dir string, bits int) *IIOSampler {
	if bits <= 0 {
		bits = 10
	}
	return &IIOSampler{Dir: dir, Bits: bits}
}

// Sample reads in_voltage<channel>_raw.
func (s *IIOSampler) Sample(channel int) (uint16, error) {
	path := filepath.Join(s.Dir, fmt.Sprintf("in_voltage%d_raw", channel))
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	raw, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return scale(raw, s.Bits), nil
}

func scale(raw uint64, bits int) uint16 {
	switch {
	case bits > 10:
		raw >>= uint(bits - 10)
	case bits < 10:
		raw <<= uint(10 - bits)
	}
	if raw > Max {
		raw = Max
	}
	return uint16(raw)
}
