package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", errors.ValidationError(fmt.Sprintf("unknown report format: %s (must be text, json, or csv)", s))
	}
}

// Write renders the report in the given format.
func Write(w io.Writer, r *Report, format Format) error {
	var err error
	switch format {
	case FormatText, "":
		err = writeText(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(r)
	case FormatCSV:
		err = writeCSV(w, r)
	default:
		return errors.ValidationError(fmt.Sprintf("unknown report format: %s", format))
	}
	if err != nil {
		return errors.IOError("writing report", err)
	}
	return nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers []string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func writeText(w io.Writer, r *Report) error {
	headers := []string{"system", "queries"}
	for _, metric := range r.Metrics {
		headers = append(headers, metric)
		if r.HasComparisons() {
			headers = append(headers, "p("+metric+")")
		}
	}

	summary := newTable(headers)
	for _, row := range r.Systems {
		name := row.System
		if row.Baseline {
			name += " (baseline)"
		}
		cells := []string{name, strconv.Itoa(row.Queries)}
		for _, metric := range r.Metrics {
			cell := row.Cells[metric]
			mean := formatValue(cell.Mean)
			if cell.Significant {
				mean += "*"
			}
			cells = append(cells, mean)
			if r.HasComparisons() {
				p := "-"
				if cell.Adjusted != nil {
					p = formatValue(*cell.Adjusted)
				}
				cells = append(cells, p)
			}
		}
		summary.Row(cells...)
	}

	if _, err := fmt.Fprintln(w, summary.String()); err != nil {
		return err
	}

	if r.HasComparisons() {
		if _, err := fmt.Fprintf(w, "test: %s  correction: %s  alpha: %g  (* = significant vs %s)\n",
			r.Test, r.Correction, r.Alpha, r.Baseline); err != nil {
			return err
		}
	}

	if len(r.PerQuery) > 0 {
		perQuery := newTable(append([]string{"system", "query"}, r.Metrics...))
		for _, row := range r.PerQuery {
			cells := []string{row.System, row.Query}
			for _, metric := range r.Metrics {
				cells = append(cells, formatValue(row.Values[metric]))
			}
			perQuery.Row(cells...)
		}
		if _, err := fmt.Fprintln(w, perQuery.String()); err != nil {
			return err
		}
	}

	for _, f := range r.Skipped {
		if _, err := fmt.Fprintf(w, "not compared: %s: %s\n", f.System, f.Error); err != nil {
			return err
		}
	}
	for _, f := range r.Failures {
		if _, err := fmt.Fprintf(w, "failed: %s: %s\n", f.System, f.Error); err != nil {
			return err
		}
	}
	return nil
}

// writeCSV emits long-form rows. Summary rows leave the query empty;
// judged query ids never are.
func writeCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"system", "query", "metric", "value", "p_value", "adjusted_p_value", "significant"}); err != nil {
		return err
	}

	for _, row := range r.Systems {
		for _, metric := range r.Metrics {
			cell := row.Cells[metric]
			rec := []string{row.System, "", metric, formatValue(cell.Mean), "", "", ""}
			if cell.PValue != nil {
				rec[4] = formatValue(*cell.PValue)
				rec[5] = formatValue(*cell.Adjusted)
				rec[6] = strconv.FormatBool(cell.Significant)
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}

	for _, row := range r.PerQuery {
		for _, metric := range r.Metrics {
			if err := cw.Write([]string{row.System, row.Query, metric, formatValue(row.Values[metric]), "", "", ""}); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
