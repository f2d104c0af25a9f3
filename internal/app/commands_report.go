package app

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"custquery/internal/domain"
	"custquery/internal/service"
)

func (a *App) reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Manage and run saved reports",
	}
	cmd.AddCommand(
		a.reportCreateCmd(),
		a.reportListCmd(),
		a.reportRunCmd(),
		a.reportLogsCmd(),
		a.reportDeleteCmd(),
	)
	return cmd
}

// withReports opens the report service for the duration of fn.
func (a *App) withReports(fn func(*service.ReportService) error) error {
	svc, closeFn, err := a.openReports()
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(svc)
}

func (a *App) reportCreateCmd() *cobra.Command {
	var (
		in                  service.ReportInput
		firstName, lastName string
		disabled            bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Save a report over the current record source",
		Long: `Create saves a named query. The report reads from the record source
selected by --file / --source-type / --source-config or the config file.`,
		Example: `  custquery report create --name big-spenders -f customers.csv --min-orders 500 --order-by firstName
  custquery report create --name nightly -f customers.json --returns names --trigger schedule --trigger-config "0 2 * * *"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("first-name") {
				in.Criteria.FirstName = &firstName
			}
			if cmd.Flags().Changed("last-name") {
				in.Criteria.LastName = &lastName
			}
			in.SourceType = a.cfg.Source.Type
			in.SourceConfig = a.cfg.Source.Config
			in.Enabled = !disabled

			return a.withReports(func(svc *service.ReportService) error {
				r, err := svc.CreateReport(cmd.Context(), in)
				if err != nil {
					return err
				}
				return a.render(cmd, r, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "created report %s (%s)\n", r.Name, r.ID)
					return err
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "unique report name")
	f.StringVar(&in.Description, "description", "", "free text description")
	f.StringVar(&firstName, "first-name", "", "exact first name")
	f.StringVar(&lastName, "last-name", "", "exact last name")
	f.IntVar(&in.Criteria.MinOrderCount, "min-orders", 0, "more than this many orders")
	f.IntVar(&in.Criteria.MaxOrderCount, "max-orders", 0, "fewer than this many orders")
	f.StringVar(&in.OrderBy, "order-by", "", "firstName, lastName or totalOrdersPlaced")
	f.StringVar(&in.Direction, "direction", "asc", "asc or desc")
	f.StringVar(&in.Output, "returns", string(domain.ReportOutputRecords), "records or names")
	f.StringVar(&in.TriggerType, "trigger", string(domain.TriggerManual), "manual, schedule or file_watch")
	f.StringVar(&in.TriggerConfig, "trigger-config", "", "cron expression, or the watched path (default: the source file)")
	f.BoolVar(&disabled, "disabled", false, "save without arming the trigger")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *App) reportListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withReports(func(svc *service.ReportService) error {
				reports, err := svc.ListReports()
				if err != nil {
					return err
				}
				return a.render(cmd, reports, func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME\tSOURCE\tTRIGGER\tENABLED\tLAST RUN\tSTATUS")
					for _, r := range reports {
						lastRun := "-"
						if r.LastRunAt != nil {
							lastRun = r.LastRunAt.Local().Format(time.DateTime)
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
							r.ID, r.Name, r.SourceType, r.TriggerType, r.Enabled, lastRun, r.LastStatus)
					}
					return tw.Flush()
				})
			})
		},
	}
}

func (a *App) reportRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run ID|NAME",
		Short: "Run a saved report now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withReports(func(svc *service.ReportService) error {
				r, err := svc.ResolveReport(args[0])
				if err != nil {
					return fmt.Errorf("report %q: %w", args[0], err)
				}
				result, err := svc.RunReport(cmd.Context(), r.ID)
				if err != nil {
					return fmt.Errorf("run report %s: %w", r.Name, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: read %d, matched %d in %s\n",
					r.Name, result.RowsRead, result.RowsMatched, result.Duration)

				if r.Output == domain.ReportOutputNames {
					return a.render(cmd, result, lines(result.Names))
				}
				return a.render(cmd, result, customerTable(result.Records))
			})
		},
	}
}

func (a *App) reportLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs ID|NAME",
		Short: "Show the latest runs of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withReports(func(svc *service.ReportService) error {
				r, err := svc.ResolveReport(args[0])
				if err != nil {
					return fmt.Errorf("report %q: %w", args[0], err)
				}
				logs, err := svc.ListRunLogs(r.ID)
				if err != nil {
					return err
				}
				return a.render(cmd, logs, func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "STARTED\tDURATION\tSTATUS\tREAD\tMATCHED\tERROR")
					for _, l := range logs {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
							l.StartedAt.Local().Format(time.DateTime),
							l.FinishedAt.Sub(l.StartedAt).Round(time.Millisecond),
							l.Status, l.RowsRead, l.RowsMatched, l.Error)
					}
					return tw.Flush()
				})
			})
		},
	}
}

func (a *App) reportDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID|NAME",
		Short: "Delete a saved report and its run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withReports(func(svc *service.ReportService) error {
				r, err := svc.ResolveReport(args[0])
				if err != nil {
					return fmt.Errorf("report %q: %w", args[0], err)
				}
				if err := svc.DeleteReport(cmd.Context(), r.ID); err != nil {
					return err
				}
				return a.render(cmd, map[string]string{"deleted": r.ID}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "deleted report %s (%s)\n", r.Name, r.ID)
					return err
				})
			})
		},
	}
}
