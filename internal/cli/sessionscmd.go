package cli

import (
	"context"
	"fmt"

	"github.com/avetisov/docpilot/internal/uploader"
)

// Pending lists resumable multipart sessions, newest first.
func (a *App) Pending(ctx context.Context) error {
	pending, err := a.orch.PendingSessions(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(a.out, "no pending uploads")
		return nil
	}

	for _, s := range pending {
		fmt.Fprintf(a.out, "%s  %s  %d bytes  %.0f%%  expires %s\n",
			s.ID, s.FileName, s.FileSize, s.Progress*100, s.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// Resume handles `uploader resume <session-id> <path>`.
func (a *App) Resume(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: resume <session-id> <path>")
	}
	sessionID, path := args[0], args[1]

	h, f, err := openHandle(path, nil)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.runWithProgress(func(events chan<- uploader.ProgressEvent) (*uploader.Result, error) {
		return a.orch.ResumeSession(ctx, sessionID, h, events)
	})
	a.printResult(res)
	return err
}

// CancelSession handles `uploader cancel <session-id>`.
func (a *App) CancelSession(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cancel <session-id>")
	}
	if err := a.orch.CancelSession(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "session discarded")
	return nil
}
