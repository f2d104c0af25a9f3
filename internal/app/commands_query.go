package app

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"custquery/internal/collections"
	"custquery/internal/customers"
	"custquery/internal/domain"
	"custquery/internal/source"
)

func (a *App) namesCmd() *cobra.Command {
	var (
		threshold int
		form      string
	)
	cmd := &cobra.Command{
		Use:   "names",
		Short: "Full names of customers with more orders than a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, err := customers.HighVolumeForm(form)
			if err != nil {
				return err
			}
			src, err := a.source()
			if err != nil {
				return err
			}
			names, err := source.Query(cmd.Context(), src, func(records iter.Seq[domain.Customer]) ([]string, error) {
				return run(records, threshold)
			})
			if err != nil {
				return fmt.Errorf("high volume names: %w", err)
			}
			return a.render(cmd, names, lines(names))
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", customers.HighVolumeThreshold, "minimum order count, exclusive")
	cmd.Flags().StringVar(&form, "form", "stages", "query form: "+strings.Join(customers.HighVolumeForms, ", "))
	return cmd
}

func (a *App) awesomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "awesome",
		Short: fmt.Sprintf("Customers with more than %d orders, by first name", customers.AwesomeThreshold),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := a.source()
			if err != nil {
				return err
			}
			found, err := customers.AwesomeCustomers(cmd.Context(), src)
			if err != nil {
				return fmt.Errorf("awesome customers: %w", err)
			}
			return a.render(cmd, found, customerTable(found))
		},
	}
}

func (a *App) cheapestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cheapest",
		Short: fmt.Sprintf("Customers with fewer than %d orders", customers.CheapThreshold),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := a.source()
			if err != nil {
				return err
			}
			found, err := customers.Cheapest(cmd.Context(), src)
			if err != nil {
				return fmt.Errorf("cheapest customers: %w", err)
			}
			return a.render(cmd, found, customerTable(found))
		},
	}
}

func (a *App) searchCmd() *cobra.Command {
	var (
		firstName, lastName string
		minOrders           int
		maxOrders           int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Customers matching every given condition",
		Long: `Search returns the customers matching all of the given flags. Flags that
are not given add no condition; with none, every customer is returned.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria := domain.Criteria{MinOrderCount: minOrders, MaxOrderCount: maxOrders}
			if cmd.Flags().Changed("first-name") {
				criteria.FirstName = &firstName
			}
			if cmd.Flags().Changed("last-name") {
				criteria.LastName = &lastName
			}

			src, err := a.source()
			if err != nil {
				return err
			}
			found, err := customers.Search(cmd.Context(), src, criteria)
			if err != nil {
				return fmt.Errorf("search customers: %w", err)
			}
			return a.render(cmd, found, customerTable(found))
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "exact first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "exact last name")
	cmd.Flags().IntVar(&minOrders, "min-orders", 0, "more than this many orders")
	cmd.Flags().IntVar(&maxOrders, "max-orders", 0, "fewer than this many orders")
	return cmd
}

func (a *App) ordersByLastNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders-by-last-name",
		Short: "Map each last name to its order count",
		Long:  "Fails when two customers share a last name.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := a.source()
			if err != nil {
				return err
			}
			byName, err := customers.OrdersByLastName(cmd.Context(), src)
			if err != nil {
				return fmt.Errorf("orders by last name: %w", err)
			}
			return a.render(cmd, byName, func(w io.Writer) error {
				names := lo.Keys(byName)
				slices.Sort(names)
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "LAST NAME\tORDERS")
				for _, name := range names {
					fmt.Fprintf(tw, "%s\t%d\n", name, byName[name])
				}
				return tw.Flush()
			})
		},
	}
}

func (a *App) invertCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "invert [JSON | FILE | -]",
		Short: "Swap the keys and values of a JSON object",
		Long: `Invert reads a flat JSON object inline, from a file, or from stdin and
prints it with keys and values swapped. When several keys share a value the
last one wins; the shared values are reported on stderr, or fail the command
with --strict.`,
		Example: `  custquery invert '{"Bar":600,"Whatever":3}'
  echo '{"a":"x","b":"x"}' | custquery invert --strict`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readMapping(cmd, args)
			if err != nil {
				return err
			}
			collisions, err := collections.JSONCollisions(raw)
			if err != nil {
				return err
			}
			if strict && len(collisions) > 0 {
				return fmt.Errorf("values held by more than one key: %s", strings.Join(collisions, ", "))
			}
			inverted, err := collections.InvertJSON(raw)
			if err != nil {
				return err
			}

			if a.format == "json" {
				if collisions == nil {
					collisions = []string{}
				}
				return a.render(cmd, invertOutput{Inverted: inverted, Collisions: collisions}, nil)
			}
			if len(collisions) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: values held by more than one key, last key kept: %s\n", strings.Join(collisions, ", "))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(inverted))
			return err
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when several keys share a value")
	return cmd
}

type invertOutput struct {
	Inverted   rawJSON  `json:"inverted"`
	Collisions []string `json:"collisions"`
}

// rawJSON marshals as itself.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }

func readMapping(cmd *cobra.Command, args []string) ([]byte, error) {
	arg := "-"
	if len(args) == 1 {
		arg = args[0]
	}
	switch trimmed := strings.TrimSpace(arg); {
	case trimmed == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return bytes.TrimSpace(data), nil
	case strings.HasPrefix(trimmed, "{"):
		return []byte(trimmed), nil
	default:
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("read mapping: %w", err)
		}
		return data, nil
	}
}

func (a *App) sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List record source types and their config fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs := source.List()
			return a.render(cmd, specs, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tLABEL\tCONFIG")
				for _, s := range specs {
					fields := lo.Map(s.ConfigFields, func(f source.ConfigField, _ int) string {
						if f.Required {
							return f.Key + "*"
						}
						return f.Key
					})
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Type, s.Label, strings.Join(fields, ", "))
				}
				return tw.Flush()
			})
		},
	}
}

func (a *App) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the configured record source can be reached",
		Long: `Check pings database sources and opens file and memory sources without
reading any records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := a.source()
			if err != nil {
				return err
			}
			if err := source.Check(cmd.Context(), src); err != nil {
				return fmt.Errorf("check %s source: %w", a.cfg.Source.Type, err)
			}
			status := map[string]string{"source": a.cfg.Source.Type, "status": "ok"}
			return a.render(cmd, status, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s source ok\n", a.cfg.Source.Type)
				return err
			})
		},
	}
}
