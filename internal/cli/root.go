// Package cli implements the typer command line: the TUI by default plus
// one-shot account, credit and typing commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/codepaste/typer/internal/app"
	"github.com/codepaste/typer/internal/config"
	"github.com/codepaste/typer/internal/logger"
	"github.com/codepaste/typer/internal/services"
	"github.com/codepaste/typer/internal/ui/tabs/history"
	"github.com/codepaste/typer/internal/ui/tabs/info"
	"github.com/codepaste/typer/internal/ui/tabs/typer"
	"github.com/codepaste/typer/internal/version"
)

// runtime holds what every command shares. Config and manager are created
// on first use so -h and -v work without touching the database.
type runtime struct {
	loadConfig func() (*config.Config, error)
	newManager func(*config.Config) (*services.Manager, error)

	cfg       *config.Config
	mgr       *services.Manager
	logCloser io.Closer
}

func defaultRuntime() *runtime {
	return &runtime{
		loadConfig: config.Load,
		newManager: func(cfg *config.Config) (*services.Manager, error) {
			return services.NewManager(cfg)
		},
	}
}

func (r *runtime) config() (*config.Config, error) {
	if r.cfg != nil {
		return r.cfg, nil
	}
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	r.cfg = cfg

	closer, err := logger.Init(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	} else {
		r.logCloser = closer
	}
	return cfg, nil
}

func (r *runtime) manager() (*services.Manager, error) {
	if r.mgr != nil {
		return r.mgr, nil
	}
	cfg, err := r.config()
	if err != nil {
		return nil, err
	}
	mgr, err := r.newManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	r.mgr = mgr
	return mgr, nil
}

// session returns the manager with the saved login restored.
func (r *runtime) session(ctx context.Context) (*services.Manager, error) {
	mgr, err := r.manager()
	if err != nil {
		return nil, err
	}
	if _, err := mgr.Restore(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (r *runtime) close() {
	if r.mgr != nil {
		if err := r.mgr.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", err)
		}
		r.mgr = nil
	}
	if r.logCloser != nil {
		_ = r.logCloser.Close()
		r.logCloser = nil
	}
}

func newRootCmd(r *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "typer",
		Short: "Type your clipboard into any window, metered in credits",
		Long: `Typer replays clipboard text into whatever window has focus, one
character at a time, and charges credits for the characters delivered.

Run without a command to open the terminal UI.`,
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(r)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.AddCommand(
		newSignupCmd(r),
		newLoginCmd(r),
		newLogoutCmd(r),
		newBalanceCmd(r),
		newStatsCmd(r),
		newHistoryCmd(r),
		newPackagesCmd(),
		newRedeemCmd(r),
		newTypeCmd(r),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	r := defaultRuntime()
	defer r.close()

	if err := newRootCmd(r).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", app.DescribeError(err))
		return 1
	}
	return 0
}

// runTUI opens the terminal UI.
func runTUI(r *runtime) error {
	cfg, err := r.config()
	if err != nil {
		return err
	}
	mgr, err := r.manager()
	if err != nil {
		return err
	}

	model := app.NewModel(mgr)

	state := model.GetState()
	model.SetTabs([]app.Tab{
		typer.New(state, cfg.FreeTrialCredits),
		history.New(state, mgr),
		info.New(state, cfg),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	go func() {
		<-sigChan
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// readPassword returns the --password flag or prompts for one line on stdin.
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}
