// Package sensors discovers hardware monitoring features, classifies them,
// names them and turns them into timestamped readings.
//
// A Catalog is rebuilt from a Provider, then scanned once per interval with
// Collect. Readings leave the package through a Submitter owned by the
// caller and reach storage through a Writer.
package sensors

import "io"

// Feature is one measurable quantity of a chip.
type Feature struct {
	// Number is the provider's handle for the feature within its chip.
	Number int
	// Label is the raw feature name, for example "temp1" or "in0".
	Label string
	// Mapped marks sub-features (limits, alarms) that belong to a master
	// feature. Only master features are collected.
	Mapped bool
}

// Provider is the hardware monitoring backend.
type Provider interface {
	// Init (re)loads the provider. nativeConfig is the provider's own
	// configuration and may be nil.
	Init(nativeConfig io.Reader) error
	// Chips lists detected chips.
	Chips() ([]Chip, error)
	// Features lists every feature of chip, master and mapped.
	Features(chip Chip) ([]Feature, error)
	// IsIgnored reports whether the native configuration hides feature.
	IsIgnored(chip Chip, feature Feature) bool
	// Read returns the current value of feature.
	Read(chip Chip, feature Feature) (float64, error)
	// Cleanup releases whatever Init acquired.
	Cleanup()
}
