package sensors

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"codeberg.org/mutker/sensorsd/internal/errors"
)

// FormatRecord renders a reading as "<timestamp>:<value>" with three
// decimals.
func FormatRecord(timestamp int64, value float64) string {
	return fmt.Sprintf("%d:%.3f", timestamp, value)
}

// ParseRecord is the inverse of FormatRecord. NaN and infinite values are
// rejected since no sink can store them.
func ParseRecord(record string) (int64, float64, error) {
	errFactory := errors.New()

	ts, val, ok := strings.Cut(record, ":")
	if !ok {
		return 0, 0, errFactory.WithData(ErrInvalidRecord, record)
	}

	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, 0, errFactory.Wrap(ErrInvalidRecord, err)
	}

	value, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, 0, errFactory.Wrap(ErrInvalidRecord, err)
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, 0, errFactory.WithData(ErrInvalidRecord, record)
	}

	return timestamp, value, nil
}
