package tui

import (
	"context"
	"errors"
	"fmt"

	"companion/internal/app"

	tea "github.com/charmbracelet/bubbletea"
)

// Source is what the terminal needs from the event loop.
type Source interface {
	Dispatcher
	Snapshots() <-chan app.Snapshot
}

// Run drives the terminal until the user quits, the loop stops or ctx is
// cancelled.
func Run(ctx context.Context, src Source, opts Options) error {
	p := tea.NewProgram(
		New(src, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	go func() {
		for snap := range src.Snapshots() {
			p.Send(SnapshotMsg{Snapshot: snap})
		}
		p.Send(LoopClosedMsg{})
	}()

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("terminal UI error: %w", err)
	}
	return nil
}
