package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codepaste/typer/internal/app"
	"github.com/codepaste/typer/internal/injector"
	"github.com/codepaste/typer/internal/ledger"
	"github.com/codepaste/typer/internal/metering"
	"github.com/codepaste/typer/internal/services"
)

func newTypeCmd(r *runtime) *cobra.Command {
	var (
		text  string
		delay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "type",
		Short: "Type the clipboard into the focused window",
		Long: `Type the clipboard into whichever window has focus once the countdown
ends. Switch to the target window during the countdown. Ctrl+C stops typing;
only the characters already delivered are charged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := r.config()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("delay") {
				delay = cfg.ArmDelay
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runType(ctx, r, cmd.OutOrStdout(), cmd.ErrOrStderr(), text, delay)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "type this text instead of the clipboard")
	cmd.Flags().DurationVarP(&delay, "delay", "d", 0, "countdown before typing starts (default ARM_DELAY)")
	return cmd
}

func runType(ctx context.Context, r *runtime, out, status io.Writer, text string, delay time.Duration) error {
	mgr, err := r.session(ctx)
	if err != nil {
		return err
	}

	if text == "" {
		if text, err = mgr.Clipboard(); err != nil {
			return err
		}
	}

	chars := injector.DeliverableLength(text)
	required := mgr.Quote(text)
	if required == 0 {
		return metering.ErrNothingToType
	}
	balance, err := mgr.Balance(ctx)
	if err != nil {
		return err
	}
	if balance < required {
		return &ledger.InsufficientCreditsError{Required: required, Available: balance}
	}

	fmt.Fprintf(out, "Typing %d characters for %d credits (balance %d)\n", chars, required, balance)

	if !countdown(ctx, status, delay) {
		fmt.Fprintln(out, "Cancelled before typing started, nothing charged")
		return nil
	}

	events, _ := mgr.Subscribe()
	defer mgr.Unsubscribe(events)

	job, err := mgr.StartTyping(context.Background(), text)
	if err != nil {
		return err
	}

	interrupted := ctx.Done()
wait:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if e, isTyping := ev.(services.TypingEvent); isTyping && e.Event.Progress.Total > 0 {
				fmt.Fprintf(status, "\rTyped %d/%d", e.Event.Progress.Done, e.Event.Progress.Total)
			}
		case <-interrupted:
			interrupted = nil
			mgr.StopTyping()
		case <-job.Done():
			break wait
		}
	}
	fmt.Fprintln(status)

	outcome := job.Outcome()
	kind, message := app.OutcomeMessage(outcome)
	fmt.Fprintln(out, message)
	fmt.Fprintf(out, "Balance: %d credits\n", outcome.Balance)

	if kind == app.NotificationError {
		return outcome.Err
	}
	return nil
}

// countdown waits delay while printing the seconds left. It reports false
// when ctx ends first.
func countdown(ctx context.Context, w io.Writer, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}

	deadline := time.Now().Add(delay)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		fmt.Fprintf(w, "\rStarting in %.0fs, focus the target window...", time.Until(deadline).Seconds())
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return false
		case <-timer.C:
			fmt.Fprintln(w)
			return true
		case <-ticker.C:
		}
	}
}
