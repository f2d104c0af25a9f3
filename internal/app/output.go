package app

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"custquery/internal/domain"
)

// render writes v as indented JSON when --output=json, otherwise through
// text. A nil text func always falls back to JSON.
func (a *App) render(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	if a.format == "json" || text == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

func customerTable(records []domain.Customer) func(io.Writer) error {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FIRST NAME\tLAST NAME\tORDERS")
		for _, c := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", c.FirstName, c.LastName, c.TotalOrdersPlaced)
		}
		return tw.Flush()
	}
}

func lines(items []string) func(io.Writer) error {
	return func(w io.Writer) error {
		for _, s := range items {
			if _, err := fmt.Fprintln(w, s); err != nil {
				return err
			}
		}
		return nil
	}
}
