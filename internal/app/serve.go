package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	mcpserver "custquery/internal/mcp"
	"custquery/internal/service"
)

// shutdownGrace bounds how long serve waits for in-flight report runs.
const shutdownGrace = 30 * time.Second

func (a *App) serveCmd() *cobra.Command {
	var withMCP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled and file-watch reports until interrupted",
		Long: `Serve arms the cron schedules and file watchers of every enabled report
and runs them as they fire. With --mcp it also serves MCP on stdin/stdout and
exits when stdin closes. SIGHUP re-reads the log level from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withReports(func(svc *service.ReportService) error {
				return a.serve(cmd.Context(), svc, withMCP)
			})
		},
	}
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "also serve MCP on stdin/stdout")
	return cmd
}

func (a *App) serve(ctx context.Context, svc *service.ReportService, withMCP bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	svc.RestartWatchers(gctx)
	a.logger.Info("serving reports", zap.Bool("mcp", withMCP))

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		svc.Stop()
		waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer waitCancel()
		svc.WaitRunning(waitCtx)
		return nil
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := a.reloadLogLevel(); err != nil {
					a.logger.Warn("failed to reload log level", zap.Error(err))
				}
			}
		}
	})

	if withMCP {
		g.Go(func() error {
			// stdin closing ends the whole serve.
			defer cancel()
			return ignoreCanceled(a.mcpServer(svc).ServeStdio(gctx))
		})
	}
	return g.Wait()
}

func (a *App) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP on stdin/stdout",
		Long: `MCP exposes the customer queries, the mapping inverter and the saved
reports as MCP tools. Report triggers are not armed; use serve --mcp for that.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withReports(func(svc *service.ReportService) error {
				return ignoreCanceled(a.mcpServer(svc).ServeStdio(cmd.Context()))
			})
		},
	}
}

func (a *App) mcpServer(svc *service.ReportService) *mcpserver.Server {
	return mcpserver.New(mcpserver.Deps{
		Name:                a.cfg.MCP.Name,
		Version:             a.cfg.MCP.Version,
		Reports:             svc,
		DefaultSourceType:   a.cfg.Source.Type,
		DefaultSourceConfig: a.cfg.Source.Config,
		Logger:              a.logger,
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
