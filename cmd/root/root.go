package root

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linlay/agent-webclient/pkg/cli"
	"github.com/linlay/agent-webclient/pkg/logging"
	"github.com/linlay/agent-webclient/pkg/paths"
)

const AppName = "agent-webclient"

type rootFlags struct {
	enableOtel  bool
	debugMode   bool
	logFilePath string
	logFile     io.Closer

	baseURL string
	token   string
	agent   string
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - terminal client for agent platforms",
		Long:  AppName + " talks to an agent platform over HTTP and streams answers into a terminal chat",
		Example: `  agent-webclient
  agent-webclient exec "@writer summarize the release notes"
  agent-webclient replay 3f2c9a`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Logging first so that nothing is written over the TUI.
			if err := flags.setupLogging(); err != nil {
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug})))
				slog.Warn("Failed to open debug log, logging to stderr", "error", err)
			}

			if flags.enableOtel {
				if err := initOTelSDK(cmd.Context()); err != nil {
					slog.Warn("Failed to initialize OpenTelemetry SDK", "error", err)
				} else {
					slog.Debug("OpenTelemetry SDK initialized successfully")
				}
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logFile != nil {
				if err := flags.logFile.Close(); err != nil {
					slog.Error("Failed to close log file", "error", err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	pf.BoolVarP(&flags.enableOtel, "otel", "o", false, "Enable OpenTelemetry tracing")
	pf.StringVar(&flags.logFilePath, "log-file", "", "Path to debug log file (default: ~/.agent-webclient/agent-webclient.debug.log; only used with --debug)")
	pf.StringVar(&flags.baseURL, "base-url", "", "Platform API base URL (env "+envBaseURL+")")
	pf.StringVar(&flags.token, "token", "", "Access token sent as a bearer token (env "+envToken+")")
	pf.StringVar(&flags.agent, "agent", "", "Agent every message is sent to")

	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "advanced", Title: "Advanced Commands:"})

	cmd.AddCommand(newChatCmd(&flags))
	cmd.AddCommand(newExecCmd(&flags))
	cmd.AddCommand(newReplayCmd(&flags))
	cmd.AddCommand(newChatsCmd(&flags))
	cmd.AddCommand(newAgentsCmd(&flags))
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	rootCmd := NewRootCmd()
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	setContextRecursive(ctx, rootCmd)

	rootCmd.SetArgs(defaultToChat(rootCmd, args))
	if err := rootCmd.Execute(); err != nil {
		return processErr(ctx, err, stderr, rootCmd)
	}
	return nil
}

func setContextRecursive(ctx context.Context, cmd *cobra.Command) {
	cmd.SetContext(ctx)
	for _, child := range cmd.Commands() {
		setContextRecursive(ctx, child)
	}
}

// defaultToChat prepends "chat" when no subcommand is given, so a bare
// "agent-webclient --debug" opens the chat screen. Help flags are left alone.
func defaultToChat(rootCmd *cobra.Command, args []string) []string {
	for _, arg := range args {
		switch {
		case arg == "--":
			return append([]string{"chat"}, args...)
		case arg == "--help" || arg == "-h":
			return args
		case strings.HasPrefix(arg, "-"):
			continue
		case isSubcommand(rootCmd, arg):
			return args
		default:
			return append([]string{"chat"}, args...)
		}
	}

	return append([]string{"chat"}, args...)
}

// isSubcommand reports whether name matches a registered subcommand or alias.
func isSubcommand(cmd *cobra.Command, name string) bool {
	switch name {
	case "help", "completion", "__complete", "__completeNoDesc":
		return true
	}
	for _, sub := range cmd.Commands() {
		if sub.Name() == name || sub.HasAlias(name) {
			return true
		}
	}
	return false
}

func processErr(ctx context.Context, err error, stderr io.Writer, rootCmd *cobra.Command) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := errors.AsType[cli.RuntimeError](err); ok {
		// Already shown by the command itself.
		return err
	}

	fmt.Fprintln(stderr, err)
	fmt.Fprintln(stderr)
	if strings.HasPrefix(err.Error(), "unknown command ") || strings.HasPrefix(err.Error(), "accepts ") {
		_ = rootCmd.Usage()
	}
	return err
}

// setupLogging sends slog output to a rotating file under the data dir, or
// to --log-file, when --debug is set. Otherwise logs are discarded.
func (f *rootFlags) setupLogging() error {
	path := cmp.Or(strings.TrimSpace(f.logFilePath), paths.DebugLogFile())
	closer, err := logging.Setup(f.debugMode, path)
	if err != nil {
		return err
	}
	f.logFile = closer
	return nil
}
