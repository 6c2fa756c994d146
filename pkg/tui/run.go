package tui

import (
	"context"
	"errors"
	"sync"

	tea "charm.land/bubbletea/v2"
)

// Run shows the chat screen until the user quits or ctx is cancelled.
func Run(ctx context.Context, eng Engine, bridge *Bridge, cfg Config, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := New(ctx, eng, bridge, cfg)
	p := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)

	var wg sync.WaitGroup
	wg.Go(func() {
		bridge.Run(ctx, p.Send)
	})

	_, err := p.Run()
	cancel()
	wg.Wait()

	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}
