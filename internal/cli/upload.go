package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/avetisov/docpilot/internal/uploader"
)

// Upload handles `uploader upload [-r] [-folder id] <path>...`.
func (a *App) Upload(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("upload", flag.ContinueOnError)
	recursive := flags.Bool("r", false, "upload a directory tree, preserving structure")
	folderID := flags.String("folder", "", "destination folder id (for -r: parent of the new tree)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	paths := flags.Args()
	if len(paths) == 0 {
		return fmt.Errorf("no paths given")
	}

	dest, err := a.resolveFolder(ctx, *folderID)
	if err != nil {
		return err
	}

	if *recursive {
		if len(paths) != 1 {
			return fmt.Errorf("-r takes exactly one directory")
		}
		return a.uploadFolder(ctx, paths[0], dest)
	}
	return a.uploadFiles(ctx, paths, dest)
}

// resolveFolder maps a destination reference to a folder id. The reference
// may be a folder id or a folder name; names must match exactly one folder.
func (a *App) resolveFolder(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}

	folders, err := a.api.ListFolders(ctx)
	if err != nil {
		return "", err
	}

	var byName []string
	for _, f := range folders {
		if f.ID == ref {
			return f.ID, nil
		}
		if f.Name == ref {
			byName = append(byName, f.ID)
		}
	}
	switch len(byName) {
	case 1:
		return byName[0], nil
	case 0:
		return "", fmt.Errorf("no folder with id or name %q", ref)
	default:
		return "", fmt.Errorf("folder name %q matches %d folders; use an id", ref, len(byName))
	}
}

func (a *App) uploadFiles(ctx context.Context, paths []string, folderID string) error {
	handles := make([]uploader.FileHandle, 0, len(paths))
	var closers []io.Closer
	defer func() { closeAll(closers) }()

	for _, p := range paths {
		h, f, err := openHandle(p, nil)
		if err != nil {
			return err
		}
		handles = append(handles, h)
		closers = append(closers, f)
	}

	res, err := a.runWithProgress(func(events chan<- uploader.ProgressEvent) (*uploader.Result, error) {
		return a.orch.UploadFiles(ctx, handles, folderID, events)
	})
	a.printResult(res)
	return err
}

func (a *App) uploadFolder(ctx context.Context, dir, parentFolderID string) error {
	root := filepath.Clean(dir)
	rootName := filepath.Base(root)

	var handles []uploader.FileHandle
	var closers []io.Closer
	defer func() { closeAll(closers) }()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			a.log.Warn(ctx, "skipping symlink", "path", path)
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		segments := append([]string{rootName}, strings.Split(filepath.ToSlash(rel), "/")...)

		h, f, err := openHandle(path, segments)
		if err != nil {
			return err
		}
		handles = append(handles, h)
		closers = append(closers, f)
		return nil
	})
	if err != nil {
		return err
	}

	res, uerr := a.runWithProgress(func(events chan<- uploader.ProgressEvent) (*uploader.Result, error) {
		return a.orch.UploadFolder(ctx, handles, parentFolderID, events)
	})
	a.printResult(res)
	return uerr
}

// openHandle stats a local file and wraps it as a caller-owned FileHandle.
// The descriptor is not opened here: a folder upload would otherwise pin one
// fd per file for the whole call.
func openHandle(path string, segments []string) (uploader.FileHandle, io.Closer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return uploader.FileHandle{}, nil, err
	}

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	lf := &lazyFile{path: path, size: info.Size()}
	return uploader.FileHandle{
		Name:        name,
		Size:        info.Size(),
		ContentType: contentType,
		Path:        segments,
		Content:     lf,
	}, lf, nil
}

// lazyFile opens its file on first read and releases the descriptor once the
// tail byte has been consumed. The engine reads files front to back, so a
// file holds an fd only while its own transfer is in flight; a retry after
// self-close just reopens.
type lazyFile struct {
	path string
	size int64

	mu sync.Mutex
	f  *os.File
}

func (l *lazyFile) ReadAt(p []byte, off int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		f, err := os.Open(l.path)
		if err != nil {
			return 0, err
		}
		l.f = f
	}
	n, err := l.f.ReadAt(p, off)
	if off+int64(n) >= l.size {
		_ = l.f.Close()
		l.f = nil
	}
	return n, err
}

func (l *lazyFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

func closeAll(files []io.Closer) {
	for _, f := range files {
		_ = f.Close()
	}
}

// runWithProgress drains the call's progress stream to stdout while the
// upload runs.
func (a *App) runWithProgress(call func(chan<- uploader.ProgressEvent) (*uploader.Result, error)) (*uploader.Result, error) {
	events := make(chan uploader.ProgressEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			fmt.Fprintf(a.out, "[%3.0f%%] %s: %s\n", ev.Percentage, ev.Stage, ev.Message)
			if ev.Detail != "" {
				fmt.Fprintf(a.out, "       %s\n", ev.Detail)
			}
		}
	}()

	res, err := call(events)
	<-done
	return res, err
}

func (a *App) printResult(res *uploader.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(a.out, "uploaded %d, failed %d, skipped %d, queued for processing %d\n",
		res.SuccessCount, res.FailureCount, res.SkippedCount, res.QueuedCount)
	for _, fe := range res.Errors {
		fmt.Fprintf(a.out, "  %s: %v\n", fe.FileName, fe.Err)
	}
}
