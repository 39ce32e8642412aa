// Package hwmon reads Linux hardware monitoring chips from sysfs
// (/sys/class/hwmon) and exposes them as a sensors.Provider.
package hwmon

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
	"codeberg.org/mutker/sensorsd/internal/sensors"
)

// DefaultRoot is where the kernel publishes hwmon class devices.
const DefaultRoot = "/sys/class/hwmon"

// Attribute kinds in lm-sensors order, with the divisor that turns the raw
// sysfs integer into display units.
var kinds = []struct {
	prefix  string
	master  string
	divisor float64
}{
	{"in", "input", 1000},
	{"fan", "input", 1},
	{"temp", "input", 1000},
	{"power", "input", 1e6},
	{"energy", "input", 1e6},
	{"curr", "input", 1000},
	{"humidity", "input", 1000},
	{"intrusion", "alarm", 1},
}

var (
	// intrusion must be tried before in.
	attrPattern = regexp.MustCompile(`^(intrusion|in|fan|temp|power|energy|curr|humidity)(\d+)_([a-z0-9_]+)$`)
	i2cPattern  = regexp.MustCompile(`^(\d+)-([0-9a-fA-F]{4})$`)
	pciPattern  = regexp.MustCompile(`^[0-9a-fA-F]{4}:([0-9a-fA-F]{2}):([0-9a-fA-F]{2})\.([0-7])$`)
	platPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+\.(\d+)$`)
)

type chipDir struct {
	chip     sensors.Chip
	dir      string
	features []feature
}

type feature struct {
	sensors.Feature
	file    string
	divisor float64
}

// Provider implements sensors.Provider over a sysfs hwmon tree.
type Provider struct {
	root   string
	log    logger.Logger
	chips  []chipDir
	config *nativeConfig
}

// Option customises a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Provider) {
		p.log = log
	}
}

// New returns a provider rooted at root. An empty root means DefaultRoot.
func New(root string, opts ...Option) *Provider {
	if root == "" {
		root = DefaultRoot
	}

	p := &Provider{
		root: root,
		log:  logger.Nop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Init parses nativeConfig, if any, and scans the hwmon tree.
func (p *Provider) Init(nativeConfig io.Reader) error {
	errFactory := errors.New()

	p.Cleanup()

	if nativeConfig != nil {
		cfg, err := parseConfig(nativeConfig)
		if err != nil {
			return err
		}
		p.config = cfg
	}

	entries, err := os.ReadDir(p.root)
	if err != nil {
		return errFactory.Wrap(ErrRootUnavailable, err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return hwmonIndex(entries[i].Name()) < hwmonIndex(entries[j].Name())
	})

	for _, entry := range entries {
		dir := filepath.Join(p.root, entry.Name())

		chip, ok := p.loadChip(dir, len(p.chips))
		if !ok {
			continue
		}

		p.chips = append(p.chips, chip)
	}

	p.log.Debug().Str("root", p.root).Int("chips", len(p.chips)).Msg("Scanned hwmon tree")

	return nil
}

// hwmonIndex orders hwmon2 before hwmon10. Names without an index sort
// last.
func hwmonIndex(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "hwmon"))
	if err != nil {
		return int(^uint(0) >> 1)
	}

	return n
}

func (p *Provider) loadChip(dir string, id int) (chipDir, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, "name"))
	if err != nil {
		p.log.Debug().Str("dir", dir).Err(err).Msg("Skipping hwmon entry without name")
		return chipDir{}, false
	}

	chip := sensors.Chip{
		Prefix: strings.TrimSpace(string(raw)),
		ID:     id,
	}
	chip.Bus, chip.Addr = detectBus(dir)

	return chipDir{
		chip:     chip,
		dir:      dir,
		features: scanFeatures(dir),
	}, true
}

// detectBus derives the lm-sensors bus and address from the device link.
func detectBus(dir string) (sensors.Bus, int) {
	target, err := filepath.EvalSymlinks(filepath.Join(dir, "device"))
	if err != nil {
		return sensors.Bus{Kind: sensors.BusNamed, Name: "virtual"}, 0
	}

	base := filepath.Base(target)

	if m := i2cPattern.FindStringSubmatch(base); m != nil {
		number, _ := strconv.Atoi(m[1])
		addr, _ := strconv.ParseInt(m[2], 16, 32)

		return sensors.Bus{Kind: sensors.BusI2C, Number: number}, int(addr)
	}

	if m := pciPattern.FindStringSubmatch(base); m != nil {
		bus, _ := strconv.ParseInt(m[1], 16, 32)
		slot, _ := strconv.ParseInt(m[2], 16, 32)
		fn, _ := strconv.ParseInt(m[3], 16, 32)

		return sensors.Bus{Kind: sensors.BusNamed, Name: "pci"}, int(bus<<8 | slot<<3 | fn)
	}

	if strings.HasPrefix(base, "PNP") || strings.HasPrefix(base, "LNX") || strings.HasPrefix(base, "ACPI") {
		return sensors.Bus{Kind: sensors.BusNamed, Name: "acpi"}, 0
	}

	if m := platPattern.FindStringSubmatch(base); m != nil {
		addr, _ := strconv.Atoi(m[1])
		return sensors.Bus{Kind: sensors.BusISA}, addr
	}

	return sensors.Bus{Kind: sensors.BusNamed, Name: "virtual"}, 0
}

func scanFeatures(dir string) []feature {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	type key struct {
		kind   int
		number int
	}

	masters := map[key]feature{}
	var mapped []struct {
		key  key
		attr string
		name string
	}

	for _, entry := range entries {
		m := attrPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		kind := kindIndex(m[1])
		number, _ := strconv.Atoi(m[2])
		k := key{kind: kind, number: number}

		if m[3] == kinds[kind].master {
			masters[k] = feature{
				Feature: sensors.Feature{Label: m[1] + m[2]},
				file:    filepath.Join(dir, entry.Name()),
				divisor: kinds[kind].divisor,
			}

			continue
		}

		mapped = append(mapped, struct {
			key  key
			attr string
			name string
		}{key: k, attr: m[3], name: entry.Name()})
	}

	keys := make([]key, 0, len(masters))
	for k := range masters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].number < keys[j].number
	})
	sort.Slice(mapped, func(i, j int) bool {
		return mapped[i].name < mapped[j].name
	})

	features := make([]feature, 0, len(keys)+len(mapped))
	for _, k := range keys {
		f := masters[k]
		f.Number = len(features)
		features = append(features, f)

		for _, sub := range mapped {
			if sub.key != k {
				continue
			}
			features = append(features, feature{
				Feature: sensors.Feature{
					Number: len(features),
					Label:  f.Label + "_" + sub.attr,
					Mapped: true,
				},
				file: filepath.Join(dir, sub.name),
			})
		}
	}

	return features
}

func kindIndex(prefix string) int {
	for i, k := range kinds {
		if k.prefix == prefix {
			return i
		}
	}

	return -1
}

// Chips returns the chips found by the last Init.
func (p *Provider) Chips() ([]sensors.Chip, error) {
	chips := make([]sensors.Chip, 0, len(p.chips))
	for _, c := range p.chips {
		chips = append(chips, c.chip)
	}

	return chips, nil
}

func (p *Provider) lookup(chip sensors.Chip) (*chipDir, error) {
	if chip.ID < 0 || chip.ID >= len(p.chips) || p.chips[chip.ID].chip != chip {
		return nil, errors.New().WithData(ErrUnknownChip, chip.Name())
	}

	return &p.chips[chip.ID], nil
}

// Features lists master features followed by their sub-features.
func (p *Provider) Features(chip sensors.Chip) ([]sensors.Feature, error) {
	c, err := p.lookup(chip)
	if err != nil {
		return nil, err
	}

	features := make([]sensors.Feature, 0, len(c.features))
	for _, f := range c.features {
		features = append(features, f.Feature)
	}

	return features, nil
}

// IsIgnored applies the ignore statements of matching chip blocks.
func (p *Provider) IsIgnored(chip sensors.Chip, feature sensors.Feature) bool {
	return p.config.ignored(chip.Name(), feature.Label)
}

// Read returns the scaled value of feature.
func (p *Provider) Read(chip sensors.Chip, feature sensors.Feature) (float64, error) {
	errFactory := errors.New()

	c, err := p.lookup(chip)
	if err != nil {
		return 0, err
	}

	if feature.Number < 0 || feature.Number >= len(c.features) {
		return 0, errFactory.WithData(ErrReadAttribute, feature.Label)
	}
	f := c.features[feature.Number]

	raw, err := os.ReadFile(f.file)
	if err != nil {
		return 0, errFactory.Wrap(ErrReadAttribute, err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, errFactory.Wrap(ErrReadAttribute, err)
	}

	if f.divisor != 0 {
		value /= f.divisor
	}

	return value, nil
}

// Cleanup forgets the scanned tree and native configuration.
func (p *Provider) Cleanup() {
	p.chips = nil
	p.config = nil
}
