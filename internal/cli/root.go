// Package cli is the command surface over the scheduler: flag parsing via
// cobra and a colored terminal summary at exit.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nestrun/internal/config"
	"nestrun/internal/drawer"
	"nestrun/internal/guard"
	"nestrun/internal/logging"
	"nestrun/internal/runner"
	"nestrun/internal/scheduler"
	"nestrun/internal/state"
)

var (
	cfgPath     string
	outdir      string
	waitTimeout float64
	plot        bool
	rerun       string
)

var rootCmd = &cobra.Command{
	Use:           "nestrun",
	Short:         "Run a local DAG of shell commands with dependency scheduling and crash-safe resume",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgPath, "cfg", "", "pipeline configuration file (required)")
	rootCmd.Flags().StringVar(&outdir, "outdir", ".", "output directory for state, logs, and drawings")
	rootCmd.Flags().Float64Var(&waitTimeout, "wt", 10, "time to wait for enough resource to initiate a task, in seconds")
	rootCmd.Flags().BoolVar(&plot, "plot", false, "render the state graph to outdir/state.svg after every transition")
	rootCmd.Flags().StringVar(&rerun, "rerun", "", "resume from an existing snapshot; pass --rerun=A,B to re-run tasks A and B even though they previously succeeded; depend and cmd always come from the current config file, not from the snapshot")
	rootCmd.Flags().Lookup("rerun").NoOptDefVal = " "
	_ = rootCmd.MarkFlagRequired("cfg")
}

// Execute runs the nestrun root command.
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return fmt.Errorf("creating outdir %s: %w", outdir, err)
	}

	log, err := logging.New(filepath.Join(outdir, "workflow.log"))
	if err != nil {
		return fmt.Errorf("opening workflow log: %w", err)
	}
	defer log.Close()

	graph, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	registry := guard.NewRegistry()
	store := state.New(outdir)
	var d drawer.Drawer = drawer.NoopDrawer{}
	if plot {
		d = drawer.NewSVGDrawer(outdir)
	}
	r := runner.New(registry, log, outdir)
	s := scheduler.New(graph, store, d, r, log, time.Duration(waitTimeout*float64(time.Second)))

	g := guard.Install(registry, log, s.MarkRunningAsKilled)
	defer g.Shutdown()

	if rerunRequested() {
		if err := s.Resume(parseRerunNames(rerun)); err != nil {
			return err
		}
	} else {
		s.Run()
	}

	s.MarkRunningAsKilled()
	printSummary(s.Success(), s.TaskCount())

	if s.Success() != s.TaskCount() {
		return ErrIncompleteRun
	}
	return nil
}

// ErrIncompleteRun is returned by Execute when the run finished without
// every task reaching success. printSummary has already reported the
// tally, so callers should turn this into a plain non-zero exit without
// printing the error text again.
var ErrIncompleteRun = fmt.Errorf("one or more tasks did not succeed")

func rerunRequested() bool {
	return rootCmd.Flags().Changed("rerun")
}

func parseRerunNames(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printSummary(success, total int) {
	bold := color.New(color.Bold)
	good := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed, color.Bold)

	bold.Println("\nRun finished")
	if success == total {
		good.Printf("Success/Total = %d/%d\n", success, total)
	} else {
		bad.Printf("Success/Total = %d/%d\n", success, total)
	}
}
