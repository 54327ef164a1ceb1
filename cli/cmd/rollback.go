package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"rewind/api/model"
	"rewind/api/saga"
	"rewind/cli/style"
)

var (
	timestampFlag string
	intervalFlag  time.Duration
	timeoutFlag   time.Duration
	plainFlag     bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [timestamp]",
	Short: "Roll the stage back to the deployment recorded at timestamp",
	Long: `Roll the stage back to the deployment recorded at timestamp.

The timestamp is the epoch milliseconds shown by 'rewind deployments' or
the same instant in ISO-8601. Without a timestamp the recorded deployments
are listed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().StringVarP(&timestampFlag, "timestamp", "t", "", "deployment timestamp to restore")
	rollbackCmd.Flags().DurationVar(&intervalFlag, "interval", 0, "stack status poll interval (env REWIND_POLL_INTERVAL)")
	rollbackCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "give up watching after this long (env REWIND_MONITOR_TIMEOUT)")
	rollbackCmd.Flags().BoolVar(&plainFlag, "plain", false, "print one line per event instead of the interactive view")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	ts := timestampFlag
	if len(args) == 1 {
		ts = args[0]
	}
	if ts == "" {
		fmt.Println(style.Hint.Render("Use a timestamp from the list below: rewind rollback -t <timestamp>"))
		fmt.Println()
		return runDeployments(cmd, nil)
	}
	if cmd.Flags().Changed("interval") {
		cfg.PollInterval = intervalFlag
	}
	if cmd.Flags().Changed("timeout") {
		cfg.MonitorTimeout = timeoutFlag
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := serviceName()
	if err != nil {
		return err
	}
	target := fmt.Sprintf("%s (%s, %s)", svc, cfg.Stage, cfg.Region)
	if plainFlag {
		return rollbackPlain(ctx, target, ts, runnerFor())
	}
	return rollbackInteractive(ctx, target, ts, runnerFor())
}

func rollbackPlain(ctx context.Context, target, ts string, run runFunc) error {
	fmt.Printf("Rolling back %s to %s\n", target, ts)
	f := &saga.PlainFormatter{}
	op, err := run(ctx, ts, func(e saga.Event) {
		fmt.Print(f.Format([]saga.Event{e}))
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("stopped watching; the stack update continues on the provider")
		}
		return err
	}
	fmt.Println(successLine(op))
	return nil
}

func rollbackInteractive(ctx context.Context, target, ts string, run runFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newRollbackModel(target, ts, cancel))
	go func() {
		op, err := run(ctx, ts, func(e saga.Event) { p.Send(sagaEventMsg(e)) })
		p.Send(rollbackResult{op: op, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	rm := final.(rollbackModel)
	if rm.interrupted {
		return errors.New("stopped watching; the stack update continues on the provider")
	}
	return rm.err
}

func successLine(op *model.StackOperation) string {
	if op == nil {
		return style.SuccessBox.Render("✓ Rollback complete")
	}
	if op.NoChanges {
		return style.SuccessBox.Render(fmt.Sprintf("✓ %s already matches %s", op.StackName, op.ArtifactDirectory))
	}
	return style.SuccessBox.Render(fmt.Sprintf("✓ Rolled back %s to %s", op.StackName, op.ArtifactDirectory))
}
