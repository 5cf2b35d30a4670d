package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/forge-recipe/pkg/types"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB3BA"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8E6CF")).Bold(true)
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	summaryBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FFB3BA")).
			Padding(0, 1)
)

// jsonOutput switches inspection commands to machine-readable output.
var jsonOutput bool

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printField(w io.Writer, key string, value interface{}) {
	fmt.Fprintf(w, "%s %v\n", keyStyle.Render(key+":"), value)
}

func ladder(actions []types.RecoveryAction) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, " -> ")
}
