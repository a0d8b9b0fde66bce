package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// renderTable writes rows as an aligned table with a dashed header rule.
func renderTable(out io.Writer, headers []string, rows [][]string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(rule, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

func printTable(headers []string, rows [][]string) {
	renderTable(os.Stdout, headers, rows)
}
