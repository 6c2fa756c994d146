package root

import (
	"cmp"
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/linlay/agent-webclient/pkg/cli"
	"github.com/linlay/agent-webclient/pkg/paths"
	"github.com/linlay/agent-webclient/pkg/prefs"
	"github.com/linlay/agent-webclient/pkg/session"
	"github.com/linlay/agent-webclient/pkg/tui"
	"github.com/linlay/agent-webclient/pkg/userconfig"
	"github.com/linlay/agent-webclient/pkg/version"
)

type chatFlags struct {
	chatID  string
	plain   bool
	newChat bool
}

func newChatCmd(root *rootFlags) *cobra.Command {
	var flags chatFlags

	cmd := &cobra.Command{
		Use:     "chat",
		Short:   "Open an interactive chat",
		Long:    "Open the chat screen. The last chat is restored unless --new or --chat is given.",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, root, &flags)
		},
	}

	cmd.Flags().StringVar(&flags.chatID, "chat", "", "Chat id to open")
	cmd.Flags().BoolVar(&flags.newChat, "new", false, "Start with an empty chat")
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "Use the line-oriented interface instead of the full screen")

	return cmd
}

func runChat(cmd *cobra.Command, root *rootFlags, flags *chatFlags) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	settings := cfg.GetSettings()

	store, err := prefs.Open(ctx, paths.PrefsDB())
	if err != nil {
		slog.Warn("Preferences unavailable", "path", paths.PrefsDB(), "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	restored := restorePrefs(ctx, store)
	chatID := flags.chatID
	if chatID == "" && !flags.newChat {
		chatID = restored.lastChat
	}
	if cfg.Agent == "" && restored.lockedAgent != "" {
		_ = cfg.Set("agent", restored.lockedAgent)
	}

	remember := func(id, title string) {
		if store == nil {
			return
		}
		if err := store.TouchChat(ctx, id, title, time.Now()); err != nil {
			slog.Warn("Failed to record chat", "chat_id", id, "error", err)
		}
		if err := store.Set(ctx, prefs.KeyLastChat, id); err != nil {
			slog.Warn("Failed to save preference", "key", prefs.KeyLastChat, "error", err)
		}
	}

	if flags.plain {
		out := cli.NewPrinter(cmd.OutOrStdout(), cli.WithDebug(root.debugMode))
		eng, err := newPrinterEngine(cfg, out)
		if err != nil {
			return err
		}
		defer eng.Close()

		return cli.Run(ctx, eng, out, cli.Config{
			AppName:            AppName,
			ChatID:             chatID,
			IncludeRawMessages: settings.IncludeRawMessages,
			OnChat:             remember,
		}, cmd.InOrStdin())
	}

	bridge := tui.NewBridge()
	eng, err := newEngine(cfg,
		session.WithSurface(bridge),
		session.WithObserver(bridge),
		session.WithToolSurface(bridge),
		session.WithActionHost(bridge),
	)
	if err != nil {
		return err
	}
	defer eng.Close()

	// Theme edits made with "config set" or an editor apply while running.
	if err := userconfig.Watch(ctx, userconfig.Path(), func(c *userconfig.Config) {
		if theme := c.GetSettings().Theme; theme != "" {
			bridge.SetTheme(theme)
		}
	}); err != nil {
		slog.Debug("Not watching config file", "error", err)
	}

	tuiCfg := tui.Config{
		AppName:            AppName,
		Version:            version.Version,
		Theme:              cmp.Or(restored.theme, settings.Theme),
		ChatID:             chatID,
		IncludeRawMessages: settings.IncludeRawMessages,
	}
	if store != nil {
		tuiCfg.Prefs = store
	}
	return tui.Run(ctx, eng, bridge, tuiCfg)
}

type restoredPrefs struct {
	lastChat    string
	lockedAgent string
	theme       string
}

func restorePrefs(ctx context.Context, store *prefs.Store) restoredPrefs {
	var r restoredPrefs
	if store == nil {
		return r
	}
	for key, dst := range map[string]*string{
		prefs.KeyLastChat:    &r.lastChat,
		prefs.KeyLockedAgent: &r.lockedAgent,
		prefs.KeyTheme:       &r.theme,
	} {
		v, ok, err := store.Get(ctx, key)
		if err != nil {
			slog.Warn("Failed to read preference", "key", key, "error", err)
			continue
		}
		if ok {
			*dst = v
		}
	}
	return r
}
