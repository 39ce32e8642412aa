package gpu

import (
	"fmt"
	"io"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/sensors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// ChipPrefix names every NVML chip.
const ChipPrefix = "nvidia"

// temperatureFeature is feature number 0; fan i is feature number i+1.
const temperatureFeature = 0

type card struct {
	chip     sensors.Chip
	device   Device
	fanCount int
}

// Provider implements sensors.Provider over NVML. NVML has no native
// configuration, so nothing is ever ignored.
type Provider struct {
	lib    Library
	log    logger.Logger
	cards  []card
	active bool
}

// New returns a provider using lib. A nil lib uses the system NVML library.
func New(lib Library, log logger.Logger) *Provider {
	if lib == nil {
		lib = NewLibrary()
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Provider{
		lib: lib,
		log: log,
	}
}

// Init loads NVML and enumerates GPUs. Devices whose PCI location or fan
// count cannot be read are skipped.
func (p *Provider) Init(nativeConfig io.Reader) error {
	p.Cleanup()

	if nativeConfig != nil {
		p.log.Debug().Msg("NVML provider has no native configuration, ignoring it")
	}

	if err := p.lib.Initialize(); err != nil {
		return err
	}
	p.active = true

	count, err := p.lib.GetDeviceCount()
	if err != nil {
		p.Cleanup()
		return err
	}

	for i := 0; i < count; i++ {
		c, err := p.loadCard(i)
		if err != nil {
			p.log.Warn().Err(err).Int("index", i).Msg("Skipping GPU")
			continue
		}

		p.cards = append(p.cards, c)
	}

	return nil
}

func (p *Provider) loadCard(index int) (card, error) {
	errFactory := errors.New()

	device, err := p.lib.GetDevice(index)
	if err != nil {
		return card{}, err
	}

	pci, ret := device.GetPciInfo()
	if !IsNVMLSuccess(ret) {
		return card{}, errFactory.Wrap(ErrDeviceInfoFailed, newNVMLError(ret))
	}

	fans, ret := device.GetNumFans()
	if !IsNVMLSuccess(ret) {
		return card{}, errFactory.Wrap(ErrFanCountFailed, newNVMLError(ret))
	}

	if name, ret := device.GetName(); IsNVMLSuccess(ret) {
		p.log.Info().Msgf("Detected GPU: %v", name)
	}

	return card{
		chip: sensors.Chip{
			Prefix: ChipPrefix,
			Bus:    sensors.Bus{Kind: sensors.BusNamed, Name: "pci"},
			Addr:   int(pci.Bus<<8 | pci.Device<<3),
			ID:     len(p.cards),
		},
		device:   device,
		fanCount: fans,
	}, nil
}

// Chips returns one chip per GPU.
func (p *Provider) Chips() ([]sensors.Chip, error) {
	chips := make([]sensors.Chip, 0, len(p.cards))
	for _, c := range p.cards {
		chips = append(chips, c.chip)
	}

	return chips, nil
}

func (p *Provider) lookup(chip sensors.Chip) (*card, error) {
	if chip.ID < 0 || chip.ID >= len(p.cards) || p.cards[chip.ID].chip != chip {
		return nil, errors.New().WithData(ErrDeviceNotFound, chip.Name())
	}

	return &p.cards[chip.ID], nil
}

// Features returns temp1 followed by fan1..fanN.
func (p *Provider) Features(chip sensors.Chip) ([]sensors.Feature, error) {
	c, err := p.lookup(chip)
	if err != nil {
		return nil, err
	}

	features := make([]sensors.Feature, 0, c.fanCount+1)
	features = append(features, sensors.Feature{Number: temperatureFeature, Label: "temp1"})
	for i := 0; i < c.fanCount; i++ {
		features = append(features, sensors.Feature{Number: i + 1, Label: fmt.Sprintf("fan%d", i+1)})
	}

	return features, nil
}

// IsIgnored always reports false.
func (p *Provider) IsIgnored(sensors.Chip, sensors.Feature) bool {
	return false
}

// Read returns degrees Celsius for temp1 and percent of maximum speed for
// fans.
func (p *Provider) Read(chip sensors.Chip, feature sensors.Feature) (float64, error) {
	errFactory := errors.New()

	c, err := p.lookup(chip)
	if err != nil {
		return 0, err
	}

	if feature.Number == temperatureFeature {
		temp, ret := c.device.GetTemperature(nvml.TEMPERATURE_GPU)
		if !IsNVMLSuccess(ret) {
			return 0, errFactory.Wrap(ErrTemperatureReadFailed, newNVMLError(ret))
		}

		return float64(temp), nil
	}

	fan := feature.Number - 1
	if fan < 0 || fan >= c.fanCount {
		return 0, errFactory.WithData(ErrUnknownFeature, feature.Label)
	}

	speed, ret := c.device.GetFanSpeed_v2(fan)
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrGetFanSpeedFailed, newNVMLError(ret))
	}

	return float64(speed), nil
}

// Cleanup shuts NVML down if Init loaded it.
func (p *Provider) Cleanup() {
	p.cards = nil

	if !p.active {
		return
	}
	p.active = false

	if err := p.lib.Shutdown(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to shut down NVML")
	}
}
