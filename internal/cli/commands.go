package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/xelth-com/datalake/internal/app"
	"github.com/xelth-com/datalake/internal/buildinfo"
	"github.com/xelth-com/datalake/internal/reader"
	datasync "github.com/xelth-com/datalake/internal/sync"
)

const shutdownTimeout = 30 * time.Second

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withApp opens the data lake, runs fn and shuts it down again
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := commandContext(cmd)
	a, err := o.Open(ctx, cmd.ErrOrStderr(), o.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open data lake", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Shutdown(sctx)
	}()
	return fn(ctx, a)
}

// selected returns the orchestrator named by --connection, or all of them
func (o *RootOptions) selected(a *app.App) ([]*datasync.Orchestrator, error) {
	if o.Connection == "" {
		list := a.Manager.List()
		if len(list) == 0 {
			return nil, NewExitError(ExitCommandError, "no connections configured")
		}
		return list, nil
	}
	orch, ok := a.Manager.Get(o.Connection)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown connection %q", o.Connection))
	}
	return []*datasync.Orchestrator{orch}, nil
}

// SyncOutcome is the result of a manual sync of one connection
type SyncOutcome struct {
	ConnectionID string               `json:"connectionId"`
	Result       *datasync.TierResult `json:"result,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <tier>",
		Short: "Run a sync tier now and wait for it",
		Long: `Run one sync tier (incremental, periodic, full or transports) against
the selected connections and wait for it to finish. Paused connections are
synced too. Exits 1 when any entity failed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := datasync.ParseTier(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, args[0], err)
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runSync(ctx, rootOpts, cmd, a, tier)
			})
		},
	}
}

func runSync(ctx context.Context, opts *RootOptions, cmd *cobra.Command, a *app.App, tier datasync.Tier) error {
	orchestrators, err := opts.selected(a)
	if err != nil {
		return err
	}

	failed := false
	outcomes := make([]SyncOutcome, 0, len(orchestrators))
	for _, o := range orchestrators {
		out := SyncOutcome{ConnectionID: o.ConnectionID()}
		if _, err := o.Prepare(ctx); err != nil {
			out.Error = err.Error()
		} else if out.Result, err = o.TriggerManualSync(ctx, tier); err != nil {
			out.Error = err.Error()
		}
		if out.Error != "" || (out.Result != nil && len(out.Result.Failed) > 0) {
			failed = true
		}
		outcomes = append(outcomes, out)
	}

	err = opts.formatter(cmd).Success(outcomes, func(w io.Writer) {
		for _, out := range outcomes {
			if out.Error != "" {
				fmt.Fprintf(w, "%s\terror: %s\n", out.ConnectionID, out.Error)
				continue
			}
			r := out.Result
			fmt.Fprintf(w, "%s\t%s\t%v\tapi calls: %d\n", out.ConnectionID, r.Tier, r.Duration.Round(time.Millisecond), r.APICalls)
			fmt.Fprintln(w, "  ENTITY\tMODE\tFETCHED\tCHANGED\tWRITTEN\tTOTAL")
			for _, e := range r.Entities {
				fmt.Fprintf(w, "  %s\t%s\t%d\t%d\t%d\t%d\n", e.Entity, e.Mode, e.Fetched, e.Changed, e.Written, e.Total)
			}
			for _, kind := range r.Failed {
				fmt.Fprintf(w, "  %s\tFAILED\n", kind)
			}
		}
	})
	if err != nil {
		return err
	}
	if failed {
		return NewExitError(ExitFailure, "sync finished with failures")
	}
	return nil
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show sync state, metrics and collection sizes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				orchestrators, err := rootOpts.selected(a)
				if err != nil {
					return err
				}
				all := make([]*datasync.Stats, 0, len(orchestrators))
				for _, o := range orchestrators {
					if _, err := o.Prepare(ctx); err != nil {
						return err
					}
					stats, err := o.GetStats(ctx)
					if err != nil {
						return err
					}
					all = append(all, stats)
				}
				return rootOpts.formatter(cmd).Success(all, func(w io.Writer) {
					for _, s := range all {
						writeStats(w, s)
					}
				})
			})
		},
	}
}

func writeStats(w io.Writer, s *datasync.Stats) {
	fmt.Fprintf(w, "%s (%s)\tstatus: %s\tpaused: %v\n", s.ConnectionID, s.Connector, s.Status, s.IsPaused)
	fmt.Fprintf(w, "  last full\t%s\n", formatTime(s.LastSync.Full))
	fmt.Fprintf(w, "  last incremental\t%s\n", formatTime(s.LastSync.Incremental))
	fmt.Fprintf(w, "  last periodic\t%s\n", formatTime(s.LastSync.Periodic))
	fmt.Fprintf(w, "  runs\t%d\tavg %.0fms\tapi calls %d\terrors/h %d\n",
		s.Metrics.SyncRunsTotal, s.Metrics.AvgSyncDurationMs, s.Metrics.APICallsTotal, s.Metrics.ErrorsLastHour)
	for _, kind := range datasync.EntityKinds {
		fmt.Fprintf(w, "  %s\t%d\n", kind, s.Collections[kind])
	}
}

// NewFreshnessCommand creates the freshness command.
func NewFreshnessCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "freshness",
		Short:         "Show when every collection was last synced",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				orchestrators, err := rootOpts.selected(a)
				if err != nil {
					return err
				}
				all := make(map[string]map[string]*reader.Freshness, len(orchestrators))
				for _, o := range orchestrators {
					f, err := a.Reader.Freshness(ctx, o.ConnectionID())
					if err != nil {
						return err
					}
					all[o.ConnectionID()] = f
				}
				return rootOpts.formatter(cmd).Success(all, func(w io.Writer) {
					fmt.Fprintln(w, "CONNECTION\tCOLLECTION\tLAST SYNCED\tFRESH")
					for _, conn := range sortedKeys(all) {
						for _, name := range sortedKeys(all[conn]) {
							f := all[conn][name]
							fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", conn, name, formatTime(f.LastSyncedAt), f.IsFresh)
						}
					}
				})
			})
		},
	}
}

// ConnectionInfo is one line of the connections command
type ConnectionInfo struct {
	OrganizationID string `json:"organizationId"`
	ConnectionID   string `json:"connectionId"`
	Connector      string `json:"connector"`
}

// NewConnectionsCommand creates the connections command.
func NewConnectionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "connections",
		Short:         "List configured connections",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				list := a.Manager.List()
				out := make([]ConnectionInfo, 0, len(list))
				for _, o := range list {
					out = append(out, ConnectionInfo{
						OrganizationID: o.OrganizationID(),
						ConnectionID:   o.ConnectionID(),
						Connector:      o.ConnectorName(),
					})
				}
				return rootOpts.formatter(cmd).Success(out, func(w io.Writer) {
					fmt.Fprintln(w, "ORGANIZATION\tCONNECTION\tCONNECTOR")
					for _, c := range out {
						fmt.Fprintf(w, "%s\t%s\t%s\n", c.OrganizationID, c.ConnectionID, c.Connector)
					}
				})
			})
		},
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"commit":     orUnknown(buildinfo.CommitHash),
				"commitTime": orUnknown(buildinfo.CommitTime),
				"buildTime":  orUnknown(buildinfo.BuildTime),
			}
			return rootOpts.formatter(cmd).Success(info, func(w io.Writer) {
				fmt.Fprintf(w, "datalakectl %s (built %s)\n", info["commit"], info["buildTime"])
			})
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
