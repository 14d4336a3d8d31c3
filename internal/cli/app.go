// Package cli wires the upload engine into a small command-line tool:
// upload files or folder trees, list resumable sessions, resume or cancel
// them.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/avetisov/docpilot/internal/api"
	"github.com/avetisov/docpilot/internal/config"
	"github.com/avetisov/docpilot/internal/logging"
	"github.com/avetisov/docpilot/internal/netx"
	"github.com/avetisov/docpilot/internal/sessions"
	"github.com/avetisov/docpilot/internal/uploader"
)

type App struct {
	cfg  *config.Config
	log  logging.Logger
	db   *sql.DB
	api  *api.Client
	orch *uploader.Orchestrator
	out  io.Writer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewText(os.Stderr, parseLevel(cfg.LogLevel))

	token := cfg.APIToken
	if token == "" {
		t, err := promptToken()
		if err != nil {
			return nil, err
		}
		token = t
	}

	db, err := sessions.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	client := api.New(cfg.APIBaseURL, token, cfg.RequestTimeout, log)
	orch := uploader.New(client, netx.New(cfg.TransferTimeout), sessions.NewSQLiteRepository(db), uploader.Options{
		MultipartThreshold: cfg.MultipartThreshold,
		MaxConcurrent:      cfg.MaxConcurrent,
		BatchSize:          cfg.BatchSize,
		MaxAttempts:        cfg.MaxAttempts,
		RetryBaseDelay:     cfg.RetryBaseDelay,
		HashTimeout:        cfg.HashTimeout,
	}, log)

	return &App{cfg: cfg, log: log, db: db, api: client, orch: orch, out: os.Stdout}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// Run dispatches the first non-flag argument as a command and returns the
// process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	cmd, rest := splitCommand(args)

	var err error
	switch cmd {
	case "upload":
		err = a.Upload(ctx, rest)
	case "folders":
		err = a.Folders(ctx)
	case "pending":
		err = a.Pending(ctx)
	case "resume":
		err = a.Resume(ctx, rest)
	case "cancel":
		err = a.CancelSession(ctx, rest)
	case "help", "":
		a.usage()
	default:
		fmt.Fprintf(a.out, "unknown command %q\n", cmd)
		a.usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return 1
	}
	return 0
}

func (a *App) usage() {
	fmt.Fprintln(a.out, `Usage:
  uploader upload [-r] [-folder ref] <path>...  upload files, or a folder tree with -r
                                                (ref is a folder id or unique name)
  uploader folders                              list destination folders
  uploader pending                              list resumable upload sessions
  uploader resume <session-id> <path>           resume an interrupted upload
  uploader cancel <session-id>                  discard a pending session
  uploader help                                 show this help`)
}

// Folders lists every destination folder visible to the caller.
func (a *App) Folders(ctx context.Context) error {
	folders, err := a.api.ListFolders(ctx)
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		fmt.Fprintln(a.out, "no folders")
		return nil
	}
	for _, f := range folders {
		fmt.Fprintf(a.out, "%s  %s\n", f.ID, f.Name)
	}
	return nil
}

// splitCommand finds the command word, skipping global flags and their
// values.
func splitCommand(args []string) (string, []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return arg, args[i+1:]
		}
		if !strings.Contains(arg, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
		}
	}
	return "", nil
}

func promptToken() (string, error) {
	fmt.Fprint(os.Stderr, "API token: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	if len(b) == 0 {
		return "", fmt.Errorf("an API token is required (flag, UPLOADER_API_TOKEN, or prompt)")
	}
	return string(b), nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
