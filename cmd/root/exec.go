package root

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/linlay/agent-webclient/pkg/cli"
)

type execFlags struct {
	chatID     string
	outputJSON bool
}

func newExecCmd(root *rootFlags) *cobra.Command {
	var flags execFlags

	cmd := &cobra.Command{
		Use:   "exec <message>...",
		Short: "Send one message and print the answer",
		Long:  "Send one message, stream the answer to stdout and exit. Start the message with @agent to pick an agent.",
		Example: `  agent-webclient exec "hello"
  agent-webclient exec --chat 3f2c9a "and in French?"`,
		GroupID: "core",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			out := cli.NewPrinter(cmd.OutOrStdout(), cli.WithDebug(root.debugMode))
			eng, err := newPrinterEngine(cfg, out)
			if err != nil {
				return err
			}
			defer eng.Close()

			return cli.Exec(cmd.Context(), eng, out, cli.Config{
				AppName:            AppName,
				ChatID:             flags.chatID,
				IncludeRawMessages: cfg.GetSettings().IncludeRawMessages,
				OutputJSON:         flags.outputJSON,
			}, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&flags.chatID, "chat", "", "Continue this chat")
	cmd.Flags().BoolVar(&flags.outputJSON, "json", false, "Print the event log as JSON lines")

	return cmd
}
