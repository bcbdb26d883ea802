package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// Output format constants.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: marshal JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printYAML(v any) {
	data, err := yaml.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: marshal YAML: %v\n", err)
		return
	}
	fmt.Print(string(data))
}

// printStructured emits v in the requested non-table format and reports
// whether it did. Table rendering stays with the caller.
func printStructured(v any) bool {
	switch flagOutput {
	case outputJSON:
		printJSON(v)
		return true
	case outputYAML:
		printYAML(v)
		return true
	default:
		return false
	}
}

type tableWriter struct {
	w *tabwriter.Writer
}

func newTable(headers ...string) *tableWriter {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	return &tableWriter{w: w}
}

func (t *tableWriter) AddRow(values ...string) {
	fmt.Fprintln(t.w, strings.Join(values, "\t"))
}

func (t *tableWriter) Flush() {
	t.w.Flush()
}

func shortTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func deletedMark(deletedAt *time.Time) string {
	if deletedAt == nil {
		return "-"
	}
	return shortTime(*deletedAt)
}
