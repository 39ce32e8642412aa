package sensors_test

import (
	"fmt"
	"io"

	"codeberg.org/mutker/sensorsd/internal/sensors"
)

type fakeProvider struct {
	initErr    error
	chips      []sensors.Chip
	chipsErr   error
	features   map[int][]sensors.Feature
	featureErr map[int]error
	ignored    map[string]bool
	values     map[string]float64
	readErr    map[string]error

	initCalls    int
	cleanupCalls int
	readCalls    int
	nativeConfig string
}

func key(chip sensors.Chip, label string) string {
	return fmt.Sprintf("%d/%s", chip.ID, label)
}

func (p *fakeProvider) Init(r io.Reader) error {
	p.initCalls++
	p.nativeConfig = ""

	if r != nil {
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		p.nativeConfig = string(b)
	}

	return p.initErr
}

func (p *fakeProvider) Chips() ([]sensors.Chip, error) {
	return p.chips, p.chipsErr
}

func (p *fakeProvider) Features(chip sensors.Chip) ([]sensors.Feature, error) {
	if err := p.featureErr[chip.ID]; err != nil {
		return nil, err
	}

	return p.features[chip.ID], nil
}

func (p *fakeProvider) IsIgnored(chip sensors.Chip, feature sensors.Feature) bool {
	return p.ignored[key(chip, feature.Label)]
}

func (p *fakeProvider) Read(chip sensors.Chip, feature sensors.Feature) (float64, error) {
	p.readCalls++

	k := key(chip, feature.Label)
	if err := p.readErr[k]; err != nil {
		return 0, err
	}

	return p.values[k], nil
}

func (p *fakeProvider) Cleanup() {
	p.cleanupCalls++
}

var (
	isaChip = sensors.Chip{Prefix: "it87", Bus: sensors.Bus{Kind: sensors.BusISA}, Addr: 0x2d, ID: 1}
	i2cChip = sensors.Chip{Prefix: "lm75", Bus: sensors.Bus{Kind: sensors.BusI2C, Number: 0}, Addr: 0x48, ID: 2}
)

// twoChipProvider has four collectable features: it87 temp1, fan1, in0 and
// lm75 temp1.
func twoChipProvider() *fakeProvider {
	return &fakeProvider{
		chips: []sensors.Chip{isaChip, i2cChip},
		features: map[int][]sensors.Feature{
			1: {
				{Number: 0, Label: "temp1"},
				{Number: 1, Label: "temp1_max", Mapped: true},
				{Number: 2, Label: "fan1"},
				{Number: 3, Label: "in0"},
				{Number: 4, Label: "intrusion0"},
			},
			2: {
				{Number: 0, Label: "temp1"},
			},
		},
		values: map[string]float64{
			"1/temp1": 42.5,
			"1/fan1":  1200,
			"1/in0":   1.104,
			"2/temp1": 30.25,
		},
	}
}
