package hwmon

import (
	"bufio"
	"io"
	"path"
	"strings"

	"codeberg.org/mutker/sensorsd/internal/errors"
)

// section is one `chip` block of an lm-sensors configuration file.
type section struct {
	patterns []string
	ignores  map[string]struct{}
}

// nativeConfig holds the parts of sensors.conf the collector honours: chip
// blocks and their ignore statements. label, compute, set and bus
// statements are accepted and skipped.
type nativeConfig struct {
	sections []section
}

var skippedStatements = map[string]struct{}{
	"label":   {},
	"compute": {},
	"set":     {},
	"bus":     {},
}

func parseConfig(r io.Reader) (*nativeConfig, error) {
	errFactory := errors.New()
	cfg := &nativeConfig{}

	// Statements before the first chip line apply to every chip.
	current := section{patterns: []string{"*"}, ignores: map[string]struct{}{}}

	lines, err := logicalLines(r)
	if err != nil {
		return nil, errFactory.Wrap(ErrParseConfig, err)
	}

	for _, line := range lines {
		lineNo := line.number

		fields, err := tokenize(line.text)
		if err != nil {
			return nil, errFactory.WithData(ErrParseConfig, struct {
				Line  int
				Cause string
			}{Line: lineNo, Cause: err.Error()})
		}
		if len(fields) == 0 {
			continue
		}

		switch keyword := fields[0]; keyword {
		case "chip":
			if len(fields) < 2 {
				return nil, errFactory.WithData(ErrParseConfig, struct {
					Line  int
					Cause string
				}{Line: lineNo, Cause: "chip statement without pattern"})
			}
			cfg.add(current)
			current = section{patterns: fields[1:], ignores: map[string]struct{}{}}
		case "ignore":
			if len(fields) != 2 {
				return nil, errFactory.WithData(ErrParseConfig, struct {
					Line  int
					Cause string
				}{Line: lineNo, Cause: "ignore takes exactly one feature"})
			}
			current.ignores[fields[1]] = struct{}{}
		default:
			if _, ok := skippedStatements[keyword]; !ok {
				return nil, errFactory.WithData(ErrParseConfig, struct {
					Line  int
					Cause string
				}{Line: lineNo, Cause: "unknown statement " + keyword})
			}
		}
	}

	cfg.add(current)

	return cfg, nil
}

// logicalLine is a statement after joining continuations. number is the
// physical line it starts on.
type logicalLine struct {
	number int
	text   string
}

// logicalLines joins lines ending in a backslash with the line after them.
// A backslash closing a comment line does not continue it.
func logicalLines(r io.Reader) ([]logicalLine, error) {
	var (
		lines   []logicalLine
		pending strings.Builder
		start   int
	)

	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		text := scanner.Text()

		if pending.Len() == 0 {
			start = lineNo
		}

		trimmed := strings.TrimRight(text, " \t\r")
		comment := strings.HasPrefix(strings.TrimSpace(trimmed), "#")

		if !comment && strings.HasSuffix(trimmed, "\\") {
			pending.WriteString(strings.TrimSuffix(trimmed, "\\"))
			pending.WriteByte(' ')
			continue
		}

		pending.WriteString(text)
		lines = append(lines, logicalLine{number: start, text: pending.String()})
		pending.Reset()
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if pending.Len() > 0 {
		lines = append(lines, logicalLine{number: start, text: pending.String()})
	}

	return lines, nil
}

func (c *nativeConfig) add(s section) {
	if len(s.ignores) > 0 {
		c.sections = append(c.sections, s)
	}
}

// ignored reports whether any block matching chipName ignores feature.
func (c *nativeConfig) ignored(chipName, feature string) bool {
	if c == nil {
		return false
	}

	for _, s := range c.sections {
		if _, ok := s.ignores[feature]; !ok {
			continue
		}

		for _, pattern := range s.patterns {
			if matched, _ := path.Match(pattern, chipName); matched {
				return true
			}
		}
	}

	return false
}

// tokenize splits a configuration line into words. Double quotes group
// words, backslash escapes the next character inside quotes and '#' starts
// a comment outside them.
func tokenize(line string) ([]string, error) {
	var (
		fields  []string
		current strings.Builder
		inWord  bool
		quoted  bool
		escaped bool
	)

	flush := func() {
		if inWord {
			fields = append(fields, current.String())
			current.Reset()
			inWord = false
		}
	}

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
			inWord = true
		case quoted:
			current.WriteRune(r)
		case r == '#':
			flush()
			return fields, nil
		case r == ' ' || r == '\t':
			flush()
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quoted {
		return nil, errors.New().WithMessage(ErrParseConfig, "unterminated quote")
	}

	flush()

	return fields, nil
}
