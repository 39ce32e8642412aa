package sensors_test

import (
	"testing"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"codeberg.org/mutker/sensorsd/internal/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionEmptyAcceptsEverything(t *testing.T) {
	assert.True(t, sensors.SelectionList{}.IsAccepted("it87-temp1"))
	assert.True(t, sensors.SelectionList{Invert: true}.IsAccepted("it87-temp1"))
}

func TestSelectionMembership(t *testing.T) {
	list := sensors.SelectionList{Patterns: []string{"it87-temp1", "LM75-TEMP1"}}

	assert.True(t, list.IsAccepted("it87-temp1"))
	assert.True(t, list.IsAccepted("IT87-Temp1"))
	assert.True(t, list.IsAccepted("lm75-temp1"))
	assert.False(t, list.IsAccepted("it87-fan1"))
	assert.False(t, list.IsAccepted("it87-temp"))

	list.Invert = true
	assert.False(t, list.IsAccepted("it87-temp1"))
	assert.True(t, list.IsAccepted("it87-fan1"))
}

func TestSelectionIsPure(t *testing.T) {
	list := sensors.SelectionList{Patterns: []string{"a", "b"}, Invert: true}

	for range 5 {
		assert.False(t, list.IsAccepted("a"))
		assert.True(t, list.IsAccepted("c"))
	}
	assert.Equal(t, []string{"a", "b"}, list.Patterns)
}

func TestConfigure(t *testing.T) {
	var opts sensors.Options

	require.NoError(t, opts.ConfigureAll([][2]string{
		{"Sensor", "it87-temp1"},
		{"sensor", "it87-fan1"},
		{"IGNORESELECTED", "yes"},
		{"ExtendedSensorNaming", "On"},
	}))

	assert.Equal(t, []string{"it87-temp1", "it87-fan1"}, opts.Selection.Patterns)
	assert.True(t, opts.Selection.Invert)
	assert.Equal(t, sensors.Extended, opts.Scheme)

	require.NoError(t, opts.Configure("IgnoreSelected", "1"))
	assert.False(t, opts.Selection.Invert)
	require.NoError(t, opts.Configure("ExtendedSensorNaming", "TRUE"))
	assert.Equal(t, sensors.Extended, opts.Scheme)
	require.NoError(t, opts.Configure("ExtendedSensorNaming", "false"))
	assert.Equal(t, sensors.Legacy, opts.Scheme)
}

func TestConfigureUnknownKey(t *testing.T) {
	var opts sensors.Options

	err := opts.ConfigureAll([][2]string{
		{"Sensor", "a"},
		{"Bogus", "x"},
		{"Sensor", "b"},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, sensors.ErrUnknownConfigKey))
	assert.Equal(t, []string{"a"}, opts.Selection.Patterns)
}
