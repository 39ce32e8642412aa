package sensors

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/sensorsd/internal/errors"
)

// MaxIdentifierLen bounds identifiers and record file names. Anything at or
// above it is rejected rather than truncated.
const MaxIdentifierLen = 512

// BusKind selects how a chip's bus is rendered in names.
type BusKind int

const (
	// BusISA covers ISA and platform devices addressed by I/O port.
	BusISA BusKind = iota
	// BusNamed covers dummy/virtual buses identified by name (pci, acpi, virtual).
	BusNamed
	// BusI2C covers numbered I2C/SMBus adapters.
	BusI2C
)

// Bus is the topology a chip hangs off.
type Bus struct {
	Kind   BusKind
	Name   string // BusNamed only
	Number int    // BusI2C only
}

// Chip is a hardware monitoring device as reported by a Provider.
type Chip struct {
	Prefix string
	Bus    Bus
	Addr   int
	// ID is opaque to everything but the Provider that produced the chip.
	ID int
}

// Name returns the lm-sensors style full chip name, for example
// "it87-isa-0290" or "lm75-i2c-0-48".
func (c Chip) Name() string {
	return c.Prefix + "-" + c.busDescriptor()
}

func (c Chip) busDescriptor() string {
	switch c.Bus.Kind {
	case BusISA:
		return fmt.Sprintf("isa-%04x", c.Addr)
	case BusNamed:
		return fmt.Sprintf("%s-%04x", c.Bus.Name, c.Addr)
	default:
		return fmt.Sprintf("i2c-%d-%02x", c.Bus.Number, c.Addr)
	}
}

// Scheme selects the identifier layout.
type Scheme int

const (
	// Legacy identifiers are "<prefix>-<label>".
	Legacy Scheme = iota
	// Extended identifiers are "<prefix>-<bus>/<category>-<label>".
	Extended
)

func (s Scheme) String() string {
	if s == Extended {
		return "extended"
	}

	return "legacy"
}

// BuildIdentifier names one feature of chip. Legacy names can collide for
// chips sharing a prefix; readings of such chips end up in one series.
func BuildIdentifier(chip Chip, label string, category Category, scheme Scheme) (string, error) {
	var b strings.Builder

	b.WriteString(chip.Prefix)
	b.WriteByte('-')
	if scheme == Extended {
		b.WriteString(chip.busDescriptor())
		b.WriteByte('/')
		b.WriteString(category.Suffix())
		b.WriteByte('-')
	}
	b.WriteString(label)

	if b.Len() >= MaxIdentifierLen {
		return "", errors.New().WithData(ErrIdentifierOverflow, struct {
			Chip   string
			Label  string
			Length int
		}{
			Chip:   chip.Prefix,
			Label:  label,
			Length: b.Len(),
		})
	}

	return b.String(), nil
}
