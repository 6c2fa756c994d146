package root

import (
	"github.com/spf13/cobra"

	"github.com/linlay/agent-webclient/pkg/cli"
)

type replayFlags struct {
	raw        bool
	outputJSON bool
}

func newReplayCmd(root *rootFlags) *cobra.Command {
	var flags replayFlags

	cmd := &cobra.Command{
		Use:     "replay <chatId>",
		Short:   "Print the history of a chat",
		GroupID: "core",
		Args:    cobra.ExactArgs(1),
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

			return cli.Replay(cmd.Context(), eng, out, cli.Config{
				AppName:            AppName,
				ChatID:             args[0],
				IncludeRawMessages: flags.raw || cfg.GetSettings().IncludeRawMessages,
				OutputJSON:         flags.outputJSON,
			})
		},
	}

	cmd.Flags().BoolVar(&flags.raw, "raw", false, "Ask the server for raw messages and print them")
	cmd.Flags().BoolVar(&flags.outputJSON, "json", false, "Print the event log as JSON lines")

	return cmd
}
