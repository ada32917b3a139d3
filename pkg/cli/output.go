package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"erpsync/internal/api"
	"erpsync/internal/domain"
)

// PrintTable writes rows under upper-cased headers, columns aligned and
// separated by two spaces.
func PrintTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
	}
	if _, err := fmt.Fprintln(tw, strings.Join(upper, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, output string, sum *domain.RunSummary) error {
	if output == "json" {
		return PrintJSON(w, sum)
	}
	rows := make([][]string, 0, len(sum.Results))
	for _, r := range sum.Results {
		note := r.SkipReason
		if note == "" && len(r.Errors) > 0 {
			note = r.Errors[len(r.Errors)-1].Message
		}
		rows = append(rows, []string{
			r.TableName,
			string(r.Status),
			fmt.Sprint(r.RowsRead),
			fmt.Sprint(r.RowsWritten),
			fmt.Sprint(r.RowsFailed()),
			r.Elapsed.Round(time.Millisecond).String(),
			note,
		})
	}
	if err := PrintTable(w, []string{"table", "status", "read", "written", "failed", "elapsed", "note"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nrun %s (%s): %d tables, %d rows read, %d written, %d failed, %d tables failed, %d incomplete, %d skipped in %s\n",
		sum.RunID, sum.Mode, len(sum.Results), sum.RowsRead, sum.RowsWritten, sum.RowsFailed,
		sum.Failed, sum.Incomplete, sum.Skipped, sum.Elapsed.Round(time.Millisecond))
	return err
}

func printSourceTables(w io.Writer, output string, tables []domain.TableDescriptor) error {
	infos := api.TablesToAPI(tables)
	if output == "json" {
		return PrintJSON(w, infos)
	}
	var rows [][]string
	for _, t := range infos {
		for _, c := range t.Columns {
			dest := c.DestinationType
			if c.Unsupported {
				dest = "(unsupported)"
			}
			rows = append(rows, []string{t.Name, c.Name, c.SourceType, dest, fmt.Sprint(c.Nullable), fmt.Sprint(c.PrimaryKey)})
		}
	}
	return PrintTable(w, []string{"table", "column", "source_type", "destination_type", "nullable", "pk"}, rows)
}

func printNames(w io.Writer, output, header string, names []string) error {
	if names == nil {
		names = []string{}
	}
	if output == "json" {
		return PrintJSON(w, names)
	}
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	return PrintTable(w, []string{header}, rows)
}
