package root

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/linlay/agent-webclient/pkg/cli"
)

func newChatsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "chats",
		Short:   "List chats",
		GroupID: "advanced",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			c, err := newClient(cfg)
			if err != nil {
				return err
			}

			chats, err := c.GetChats(cmd.Context())
			if err != nil {
				return err
			}
			cli.NewPrinter(cmd.OutOrStdout()).PrintChats(chats, time.Now())
			return nil
		},
	}
}

func newAgentsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "agents",
		Short:   "List agents",
		GroupID: "advanced",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			c, err := newClient(cfg)
			if err != nil {
				return err
			}

			agents, err := c.GetAgents(cmd.Context())
			if err != nil {
				return err
			}
			cli.NewPrinter(cmd.OutOrStdout()).PrintAgents(agents, cfg.Agent)
			return nil
		},
	}
}
