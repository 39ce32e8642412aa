package main

import (
	"fmt"
	"io"
	"strings"

	"codeberg.org/mutker/sensorsd/internal/sensors"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var listColumns = []string{"CHIP", "FEATURE", "CATEGORY", "IDENTIFIER"}

// pad pads a styled string to width, ignoring escape sequences.
func pad(styled string, width int) string {
	w := lipgloss.Width(styled)
	if w >= width {
		return styled
	}
	return styled + strings.Repeat(" ", width-w)
}

// printCatalog rebuilds the catalog and writes one row per feature.
// The rebuild error is reported after whatever could be listed.
func printCatalog(w io.Writer, catalog *sensors.Catalog) error {
	rebuildErr := catalog.Rebuild()

	listings, err := catalog.List()
	if err != nil {
		return err
	}

	fmt.Fprint(w, renderListings(listings))

	return rebuildErr
}

func renderListings(listings []sensors.Listing) string {
	rows := make([][]string, 0, len(listings))
	for _, l := range listings {
		identifier := l.Identifier
		if identifier == "" {
			identifier = dimStyle.Render("(too long)")
		}
		rows = append(rows, []string{l.Chip.Name(), l.Feature.Label, l.Category.String(), identifier})
	}

	widths := make([]int, len(listColumns))
	for i, c := range listColumns {
		widths[i] = lipgloss.Width(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder

	for i, c := range listColumns {
		b.WriteString(pad(headerStyle.Render(c), widths[i]+2))
	}
	b.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(pad(cell, widths[i]+2))
		}
		b.WriteString("\n")
	}

	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("no collectable sensor features"))
		b.WriteString("\n")
	}

	return b.String()
}
