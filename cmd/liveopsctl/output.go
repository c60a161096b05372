package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// tableOutput reports whether the command should render a human-readable
// table instead of a structured document. List commands check this before
// falling back to printOutput.
func tableOutput() bool {
	return outputFmt != "json" && outputFmt != "yaml"
}

// printOutput renders v as JSON or YAML per --output.
func printOutput(v any) error {
	switch outputFmt {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through encoding/json so the YAML keys follow the
		// struct json tags rather than the Go field names.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unsupported output format for structured data: %s (use json or yaml)", outputFmt)
	}
}

// table accumulates aligned rows for list commands.
type table struct {
	w *tabwriter.Writer
}

func newTable(columns ...string) *table {
	t := &table{w: tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)}
	upper := make([]string, len(columns))
	for i, c := range columns {
		upper[i] = strings.ToUpper(c)
	}
	fmt.Fprintln(t.w, strings.Join(upper, "\t"))
	return t
}

// row appends one line. Cells may be strings or ints; an empty string
// prints as a dash so sparse columns stay scannable.
func (t *table) row(cells ...any) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case int:
			parts[i] = strconv.Itoa(v)
		case string:
			if v == "" {
				v = "-"
			}
			parts[i] = v
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	fmt.Fprintln(t.w, strings.Join(parts, "\t"))
}

func (t *table) flush() {
	_ = t.w.Flush()
}

// clip bounds a cell to n characters with an ellipsis so wide values such
// as content hashes and publish errors do not blow out the table.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// loadBodyFile reads a YAML or JSON file into a generic document. YAML is a
// superset of JSON, so one decoder covers both.
func loadBodyFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
