package sensors

// Category is the semantic kind of a sensor feature.
type Category int

const (
	Unknown Category = iota
	Voltage
	FanSpeed
	Temperature
)

var categorySuffixes = [...]string{
	Unknown:     "unknown",
	Voltage:     "voltage",
	FanSpeed:    "fanspeed",
	Temperature: "temperature",
}

// Suffix returns the category segment used by extended identifiers.
func (c Category) Suffix() string {
	if c < Unknown || int(c) >= len(categorySuffixes) {
		return categorySuffixes[Unknown]
	}

	return categorySuffixes[c]
}

func (c Category) String() string {
	return c.Suffix()
}
