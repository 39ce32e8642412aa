package sensors

import (
	"strings"

	"codeberg.org/mutker/sensorsd/internal/errors"
)

// KnownLabelRule maps a raw feature label prefix onto a category.
type KnownLabelRule struct {
	Pattern  string
	Category Category
}

// knownLabels is the classic lm_sensors feature table. Within a family the
// longer pattern comes first so "temp1" wins over "temp". in1 is absent on
// purpose; existing series never carried it.
var knownLabels = []KnownLabelRule{
	{"fan7", FanSpeed},
	{"fan6", FanSpeed},
	{"fan5", FanSpeed},
	{"fan4", FanSpeed},
	{"fan3", FanSpeed},
	{"fan2", FanSpeed},
	{"fan1", FanSpeed},
	{"in8", Voltage},
	{"in7", Voltage},
	{"in6", Voltage},
	{"in5", Voltage},
	{"in4", Voltage},
	{"in3", Voltage},
	{"in2", Voltage},
	{"in0", Voltage},
	{"remote_temp", Temperature},
	{"temp7", Temperature},
	{"temp6", Temperature},
	{"temp5", Temperature},
	{"temp4", Temperature},
	{"temp3", Temperature},
	{"temp2", Temperature},
	{"temp1", Temperature},
	{"temp", Temperature},
	{"Vccp2", Voltage},
	{"Vccp1", Voltage},
	{"vdd", Voltage},
	{"vid4", Voltage},
	{"vid3", Voltage},
	{"vid2", Voltage},
	{"vid1", Voltage},
	{"vid", Voltage},
	{"vin4", Voltage},
	{"vin3", Voltage},
	{"vin2", Voltage},
	{"vin1", Voltage},
	{"voltbatt", Voltage},
	{"volt12", Voltage},
	{"volt5", Voltage},
	{"vrm", Voltage},
	{"12V", Voltage},
	{"2.5V", Voltage},
	{"3.3V", Voltage},
	{"5V", Voltage},
}

var defaultLabels = MustLabelTable(knownLabels)

// LabelTable is an ordered, validated list of label rules. Classification
// takes the first rule whose pattern prefixes the label, so a table is only
// accepted when no rule is shadowed by an earlier, shorter one.
type LabelTable struct {
	rules []KnownLabelRule
}

// NewLabelTable validates rules and returns a table holding a private copy.
func NewLabelTable(rules []KnownLabelRule) (*LabelTable, error) {
	errFactory := errors.New()

	for i, rule := range rules {
		if rule.Pattern == "" {
			return nil, errFactory.WithData(ErrInvalidLabelTable, struct {
				Index int
			}{Index: i})
		}

		for _, earlier := range rules[:i] {
			if strings.HasPrefix(rule.Pattern, earlier.Pattern) {
				return nil, errFactory.WithData(ErrInvalidLabelTable, struct {
					Pattern    string
					ShadowedBy string
				}{
					Pattern:    rule.Pattern,
					ShadowedBy: earlier.Pattern,
				})
			}
		}
	}

	table := &LabelTable{rules: make([]KnownLabelRule, len(rules))}
	copy(table.rules, rules)

	return table, nil
}

// MustLabelTable is NewLabelTable for tables fixed at compile time.
func MustLabelTable(rules []KnownLabelRule) *LabelTable {
	table, err := NewLabelTable(rules)
	if err != nil {
		panic(err)
	}

	return table
}

// DefaultLabels returns the built-in label table.
func DefaultLabels() *LabelTable {
	return defaultLabels
}

// Classify returns the category of the first rule whose pattern is a prefix
// of label. The boolean is false when nothing matches.
func (t *LabelTable) Classify(label string) (Category, bool) {
	for _, rule := range t.rules {
		if strings.HasPrefix(label, rule.Pattern) {
			return rule.Category, true
		}
	}

	return Unknown, false
}

// Rules returns a copy of the table in match order.
func (t *LabelTable) Rules() []KnownLabelRule {
	rules := make([]KnownLabelRule, len(t.rules))
	copy(rules, t.rules)

	return rules
}

// Len returns the number of rules.
func (t *LabelTable) Len() int {
	return len(t.rules)
}
