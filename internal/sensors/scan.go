package sensors

import (
	"iter"
	"time"
)

// Reading is one value produced by a scan cycle.
type Reading struct {
	Identifier string
	// Timestamp is wall-clock seconds since the Unix epoch.
	Timestamp int64
	Value     float64
}

// Record formats the reading for a Writer.
func (r Reading) Record() string {
	return FormatRecord(r.Timestamp, r.Value)
}

// Collect returns one scan cycle over the catalog. Nothing is read until the
// sequence is ranged over. Entries that fail to read, overflow the
// identifier limit or are rejected by the selection list are skipped; the
// cycle ends early when the consumer stops or the catalog is rebuilt.
func (c *Catalog) Collect(now func() time.Time) iter.Seq[Reading] {
	if now == nil {
		now = time.Now
	}

	return func(yield func(Reading) bool) {
		generation := c.generation
		entries := c.entries

		c.lastCycle = CycleStats{
			Generation: generation,
			Entries:    len(entries),
		}
		stats := &c.lastCycle

		for _, entry := range entries {
			if c.generation != generation {
				stats.Abandoned = true
				return
			}

			chip, err := c.Chip(entry.Chip)
			if err != nil {
				stats.Abandoned = true
				return
			}

			feature, err := c.Feature(entry.Feature)
			if err != nil {
				stats.Abandoned = true
				return
			}

			value, err := c.provider.Read(chip, feature)
			if err != nil {
				stats.ReadFailures++
				c.log.Debug().Err(err).Str("chip", chip.Name()).Str("feature", feature.Label).Msg("Sensor read failed")

				continue
			}

			identifier, err := BuildIdentifier(chip, feature.Label, entry.Category, c.options.Scheme)
			if err != nil {
				stats.Overflows++
				continue
			}

			if !c.options.Selection.IsAccepted(identifier) {
				stats.Filtered++
				continue
			}

			stats.Emitted++

			if !yield(Reading{
				Identifier: identifier,
				Timestamp:  now().Unix(),
				Value:      value,
			}) {
				return
			}
		}
	}
}
