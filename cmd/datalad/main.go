// Command datalad is the CLI entry point wiring config, the VCS bridge, the
// dataset graph, the transfer engine, the run recorder, and the result bus
// together.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/datalad-core/datalad/internal/config"
	"github.com/datalad-core/datalad/internal/dlctx"
	"github.com/datalad-core/datalad/internal/dsgraph"
	"github.com/datalad-core/datalad/internal/resultbus"
	"github.com/datalad-core/datalad/internal/run"
	"github.com/datalad-core/datalad/internal/transfer"
	"github.com/datalad-core/datalad/internal/vcsbridge"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

// exitCode carries the bus's accumulated error-record exit status out of a
// cobra RunE, which itself only ever returns an error for usage/internal
// failures.
var exitCode int

func newRootCommand() *cobra.Command {
	var jobs int
	var onFailure string

	root := &cobra.Command{
		Use:   "datalad",
		Short: "dataset management for linked data with VCS-tracked provenance",
	}
	root.PersistentFlags().IntVar(&jobs, "jobs", 0, "parallel transfer workers (0 = auto)")
	root.PersistentFlags().StringVar(&onFailure, "on-failure", "continue", "continue|stop|ignore")

	root.AddCommand(
		newStatusCommand(),
		newGetCommand(&jobs),
		newPushCommand(&jobs),
		newRunCommand(),
		newRerunCommand(),
	)
	return root
}

// openDataset resolves dsPath (cwd when dsPath is empty) to a *Dataset
// handle with its ambient Context and Store wired in.
func openDataset(dsPath string) (*dsgraph.Dataset, *dlctx.Context, *config.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, nil, err
	}
	if dsPath == "" {
		dsPath = cwd
	}
	abs, err := filepath.Abs(dsPath)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := dlctx.New(filepath.Join(abs, ".vcs", "sockets"), filepath.Join(abs, ".vcs", "locks"))
	log := ctx.Log.WithField("dataset", abs)

	ds, err := dsgraph.Handle(abs, log)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg := config.New(
		"/etc/datalad.conf",
		filepath.Join(os.Getenv("HOME"), ".config", "datalad", "config"),
		filepath.Join(abs, ".vcs", "config"),
		filepath.Join(abs, ".datalad", "config"),
		filepath.Join(abs, ".vcs", "locks"),
	)
	ds.Config = cfg
	return ds, ctx, cfg, nil
}

func newResultBus(command string, onFailure string) *resultbus.Bus {
	return resultbus.NewBus(command, resultbus.ColorableStdout(), resultbus.Filter{}, resultbus.OnFailure(onFailure))
}

// readOnFailure reads the inherited --on-failure persistent flag, falling
// back to "continue" when unset.
func readOnFailure(cmd *cobra.Command) string {
	v, err := cmd.Flags().GetString("on-failure")
	if err != nil || v == "" {
		return "continue"
	}
	return v
}

func newStatusCommand() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "status [path...]",
		Short: "report modifications in the working tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, ctx, _, err := openDataset("")
			if err != nil {
				return err
			}
			defer ctx.Close()

			bus := newResultBus("status", readOnFailure(cmd))
			records, err := ds.Status(context.Background(), args, recursive, dsgraph.EvalCommit)
			if err != nil {
				return err
			}
			for _, r := range records {
				bus.Emit(resultbus.Record{
					Action: "status", Status: resultbus.StatusOK,
					Path: filepath.Join(ds.Root, r.Path), Type: resultbus.TypeFile,
					Message: string(r.State),
				})
			}
			exitCode = finishBus(bus)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "recurse into subdatasets")
	return cmd
}

func newGetCommand(jobs *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [path...]",
		Short: "fetch file content through the transfer engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, ctx, cfg, err := openDataset("")
			if err != nil {
				return err
			}
			defer ctx.Close()

			engine := transfer.NewEngine(ctx, cfg, ds.Bridge, ctx.Log.WithField("cmp", "transfer"), *jobs)
			defer engine.Cleanup()

			bus := newResultBus("get", readOnFailure(cmd))
			for _, a := range args {
				_, _, exit, err := ds.Bridge.CallVcs(context.Background(), []string{"annex", "get", "--", a}, vcsbridge.RunOpts{})
				status := resultbus.StatusOK
				if err != nil || exit != 0 {
					status = resultbus.StatusError
				}
				bus.Emit(resultbus.Record{Action: "get", Status: status, Path: filepath.Join(ds.Root, a), Type: resultbus.TypeFile, Message: "fetched"})
			}
			exitCode = finishBus(bus)
			return nil
		},
	}
	return cmd
}

func newPushCommand(jobs *int) *cobra.Command {
	var recursive bool
	var data string
	var to string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "publish dataset state and content to a sibling",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, ctx, cfg, err := openDataset("")
			if err != nil {
				return err
			}
			defer ctx.Close()
			engine := transfer.NewEngine(ctx, cfg, ds.Bridge, ctx.Log.WithField("cmp", "push"), *jobs)
			defer engine.Cleanup()

			pusher := &transfer.Pusher{Engine: engine, Log: ctx.Log.WithField("cmp", "push")}
			results, err := pusher.Push(context.Background(), ds, to, recursive, transfer.DataPolicy(data))
			if err != nil {
				return err
			}
			bus := newResultBus("push", readOnFailure(cmd))
			for _, r := range results {
				status := resultbus.StatusOK
				if r.Status == transfer.StatusError {
					status = resultbus.StatusError
				}
				bus.Emit(resultbus.Record{Action: "push", Status: status, Path: r.Path, Type: resultbus.TypeDataset, Message: fmt.Sprintf("published=%v data=%d", r.Published, r.DataPushed)})
			}
			exitCode = finishBus(bus)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "push subdatasets bottom-up first")
	cmd.Flags().StringVar(&data, "data", string(transfer.DataAuto), "auto|all|nothing")
	cmd.Flags().StringVar(&to, "to", "", "destination sibling name")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newRunCommand() *cobra.Command {
	var message string
	var inputs, outputs []string
	var explicit bool
	cmd := &cobra.Command{
		Use:   "run -- COMMAND...",
		Short: "run a command and record its inputs, outputs, and exit code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, ctx, cfg, err := openDataset("")
			if err != nil {
				return err
			}
			defer ctx.Close()
			engine := transfer.NewEngine(ctx, cfg, ds.Bridge, ctx.Log.WithField("cmp", "run"), 0)
			defer engine.Cleanup()

			recorder := &run.Recorder{Dataset: ds}
			outcome, err := recorder.Run(context.Background(), run.Options{
				Argv: args, Message: message, Inputs: inputs, Outputs: outputs,
				Explicit: explicit, Engine: engine,
			})
			if err != nil {
				return err
			}
			bus := newResultBus("run", readOnFailure(cmd))
			status := resultbus.StatusOK
			if outcome.Status == transfer.StatusError {
				status = resultbus.StatusError
			}
			bus.Emit(resultbus.Record{Action: "run", Status: status, Path: ds.Root, Type: resultbus.TypeDataset, Message: fmt.Sprintf("exit=%d commit=%s", outcome.ExitCode, outcome.Commit)})
			exitCode = finishBus(bus)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message subject")
	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "input glob, repeatable")
	cmd.Flags().StringSliceVarP(&outputs, "output", "o", nil, "output glob, repeatable")
	cmd.Flags().BoolVar(&explicit, "explicit", false, "permit a dirty working tree")
	return cmd
}

func newRerunCommand() *cobra.Command {
	var script string
	cmd := &cobra.Command{
		Use:   "rerun [revision...]",
		Short: "replay one or more previously recorded run commits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, ctx, cfg, err := openDataset("")
			if err != nil {
				return err
			}
			defer ctx.Close()
			engine := transfer.NewEngine(ctx, cfg, ds.Bridge, ctx.Log.WithField("cmp", "rerun"), 0)
			defer engine.Cleanup()

			rerunner := &run.Rerunner{Dataset: ds, Engine: engine}
			if script != "" {
				out, err := rerunner.Script(context.Background(), args)
				if err != nil {
					return err
				}
				return os.WriteFile(script, []byte(out), 0o755)
			}

			results, err := rerunner.Rerun(context.Background(), args, run.OnFailureStop)
			if err != nil {
				return err
			}
			bus := newResultBus("rerun", readOnFailure(cmd))
			for _, r := range results {
				status := resultbus.StatusOK
				if r.Outcome.Status == transfer.StatusError {
					status = resultbus.StatusError
				}
				bus.Emit(resultbus.Record{Action: "rerun", Status: status, Path: ds.Root, Type: resultbus.TypeDataset, Message: fmt.Sprintf("revision=%s exit=%d", r.Revision, r.Outcome.ExitCode)})
			}
			exitCode = finishBus(bus)
			return nil
		},
	}
	cmd.Flags().StringVar(&script, "script", "", "write reconstructed commands to FILE instead of executing")
	return cmd
}

func finishBus(bus *resultbus.Bus) int {
	if err := bus.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return bus.ExitCode()
}
