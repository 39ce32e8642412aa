package sensors

import (
	"os"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/logger"
)

// ChipRef points at a chip owned by a Catalog generation.
type ChipRef struct {
	generation uint64
	index      int
}

// FeatureRef points at a feature owned by a Catalog generation.
type FeatureRef struct {
	generation uint64
	index      int
}

// FeatureEntry is one collectable feature. Entries are built by Rebuild and
// never modified afterwards.
type FeatureEntry struct {
	Chip     ChipRef
	Feature  FeatureRef
	Category Category
}

// Listing describes an entry for display.
type Listing struct {
	Chip       Chip
	Feature    Feature
	Category   Category
	Identifier string
}

// CycleStats counts what happened during the most recent scan cycle.
type CycleStats struct {
	Generation   uint64
	Entries      int
	Emitted      int
	ReadFailures int
	Overflows    int
	Filtered     int
	// Abandoned is set when the catalog was rebuilt mid-cycle.
	Abandoned bool
}

// Catalog is the ordered set of features collected each cycle. It is not
// safe for concurrent use; rebuilds and scans must run on one goroutine.
type Catalog struct {
	provider     Provider
	options      Options
	labels       *LabelTable
	nativeConfig string
	log          logger.Logger

	generation uint64
	chips      []Chip
	features   []Feature
	entries    []FeatureEntry
	lastCycle  CycleStats
}

// CatalogOption customises a Catalog.
type CatalogOption func(*Catalog)

// WithLabels replaces the built-in label table.
func WithLabels(table *LabelTable) CatalogOption {
	return func(c *Catalog) {
		c.labels = table
	}
}

// WithNativeConfig sets the provider configuration file opened on every
// rebuild. An empty path initialises the provider without one.
func WithNativeConfig(path string) CatalogOption {
	return func(c *Catalog) {
		c.nativeConfig = path
	}
}

// WithLogger sets the catalog logger.
func WithLogger(log logger.Logger) CatalogOption {
	return func(c *Catalog) {
		c.log = log
	}
}

// NewCatalog returns an empty catalog. Call Rebuild to populate it.
func NewCatalog(provider Provider, options Options, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		provider: provider,
		options:  options,
		labels:   DefaultLabels(),
		log:      logger.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Options returns the options the catalog was built with.
func (c *Catalog) Options() Options {
	return c.options
}

// Rebuild discards the current entries and enumerates the provider again.
// When the provider cannot be initialised the catalog stays empty and the
// error is returned after being logged; polling an empty catalog is valid.
func (c *Catalog) Rebuild() error {
	c.generation++
	c.chips = nil
	c.features = nil
	c.entries = nil

	if err := c.initProvider(); err != nil {
		c.log.ErrorWithCode(err).Msg("Sensor provider unavailable, collecting nothing")
		c.provider.Cleanup()

		return err
	}

	chips, err := c.provider.Chips()
	if err != nil {
		coded := errors.New().Wrap(ErrProviderUnavailable, err)
		c.log.ErrorWithCode(coded).Msg("Failed to enumerate chips")
		c.provider.Cleanup()

		return coded
	}

	seen := make(map[featureKey]struct{})
	for _, chip := range chips {
		c.addChip(chip, seen)
	}

	if len(c.entries) == 0 {
		c.log.Info().Msg("No collectable sensor features found")
		c.provider.Cleanup()

		return nil
	}

	c.log.Info().
		Int("chips", len(c.chips)).
		Int("features", len(c.entries)).
		Uint64("generation", c.generation).
		Msg("Sensor catalog rebuilt")

	return nil
}

func (c *Catalog) initProvider() errors.Error {
	errFactory := errors.New()

	if c.nativeConfig == "" {
		if err := c.provider.Init(nil); err != nil {
			return errFactory.Wrap(ErrProviderUnavailable, err)
		}

		return nil
	}

	f, err := os.Open(c.nativeConfig)
	if err != nil {
		return errFactory.Wrap(ErrNativeConfig, err)
	}
	defer f.Close()

	if err := c.provider.Init(f); err != nil {
		return errFactory.Wrap(ErrProviderUnavailable, err)
	}

	return nil
}

// featureKey identifies a (chip, feature) pair within one rebuild.
type featureKey struct {
	chip    int
	feature int
}

func (c *Catalog) addChip(chip Chip, seen map[featureKey]struct{}) {
	features, err := c.provider.Features(chip)
	if err != nil {
		c.log.Warn().Err(err).Str("chip", chip.Name()).Msg("Skipping chip, failed to list features")
		return
	}

	chipIndex := -1

	for _, feature := range features {
		if feature.Mapped {
			continue
		}

		category, ok := c.labels.Classify(feature.Label)
		if !ok {
			continue
		}

		key := featureKey{chip: chip.ID, feature: feature.Number}
		if _, dup := seen[key]; dup {
			c.log.Debug().Str("chip", chip.Name()).Str("feature", feature.Label).Msg("Skipping duplicate feature")
			continue
		}
		seen[key] = struct{}{}

		if c.provider.IsIgnored(chip, feature) {
			c.log.Debug().Str("chip", chip.Name()).Str("feature", feature.Label).Msg("Feature ignored by native configuration")
			continue
		}

		if chipIndex < 0 {
			c.chips = append(c.chips, chip)
			chipIndex = len(c.chips) - 1
		}

		c.features = append(c.features, feature)
		c.entries = append(c.entries, FeatureEntry{
			Chip:     ChipRef{generation: c.generation, index: chipIndex},
			Feature:  FeatureRef{generation: c.generation, index: len(c.features) - 1},
			Category: category,
		})
	}
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Generation returns the rebuild counter. It starts at zero and increases by
// one on every Rebuild.
func (c *Catalog) Generation() uint64 {
	return c.generation
}

// Entries returns a copy of the entries in collection order.
func (c *Catalog) Entries() []FeatureEntry {
	entries := make([]FeatureEntry, len(c.entries))
	copy(entries, c.entries)

	return entries
}

// Chip resolves ref. Refs from an earlier generation fail with ErrStaleRef.
func (c *Catalog) Chip(ref ChipRef) (Chip, error) {
	if ref.generation != c.generation || ref.index < 0 || ref.index >= len(c.chips) {
		return Chip{}, c.staleRef(ref.generation)
	}

	return c.chips[ref.index], nil
}

// Feature resolves ref. Refs from an earlier generation fail with ErrStaleRef.
func (c *Catalog) Feature(ref FeatureRef) (Feature, error) {
	if ref.generation != c.generation || ref.index < 0 || ref.index >= len(c.features) {
		return Feature{}, c.staleRef(ref.generation)
	}

	return c.features[ref.index], nil
}

func (c *Catalog) staleRef(generation uint64) errors.Error {
	return errors.New().WithData(ErrStaleRef, struct {
		Ref     uint64
		Current uint64
	}{
		Ref:     generation,
		Current: c.generation,
	})
}

// List resolves every entry and builds its identifier with the configured
// scheme. Entries whose identifier overflows are listed with an empty
// Identifier.
func (c *Catalog) List() ([]Listing, error) {
	listings := make([]Listing, 0, len(c.entries))

	for _, entry := range c.entries {
		chip, err := c.Chip(entry.Chip)
		if err != nil {
			return nil, err
		}

		feature, err := c.Feature(entry.Feature)
		if err != nil {
			return nil, err
		}

		identifier, _ := BuildIdentifier(chip, feature.Label, entry.Category, c.options.Scheme)

		listings = append(listings, Listing{
			Chip:       chip,
			Feature:    feature,
			Category:   entry.Category,
			Identifier: identifier,
		})
	}

	return listings, nil
}

// LastCycle returns the counters of the most recent scan cycle.
func (c *Catalog) LastCycle() CycleStats {
	return c.lastCycle
}
