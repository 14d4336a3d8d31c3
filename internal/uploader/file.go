// Package uploader is the client-driven upload engine: it filters and
// analyzes file sets, provisions folder hierarchies, obtains presigned write
// URLs, drives bytes to object storage (single PUT or resumable multipart)
// under a global concurrency cap, and registers completed uploads with the
// metadata service.
package uploader

import (
	"io"
	"strings"
)

// FileHandle is a caller-owned, readable byte source. Content must support
// random access so retries and multipart parts can re-read ranges without
// the engine buffering whole files; an *os.File qualifies.
type FileHandle struct {
	// Name is the bare file name, no directory part.
	Name string

	// Size in bytes.
	Size int64

	// ContentType is the MIME type sent with storage PUTs.
	ContentType string

	// Path is the hierarchical path of a folder upload: every ancestor
	// folder segment followed by the file name. Nil for flat uploads.
	Path []string

	// Content provides the bytes.
	Content io.ReaderAt
}

// reader returns a fresh reader over the whole file.
func (h FileHandle) reader() io.Reader {
	return io.NewSectionReader(h.Content, 0, h.Size)
}

// rangeReader returns a fresh reader over [offset, offset+n).
func (h FileHandle) rangeReader(offset, n int64) io.Reader {
	return io.NewSectionReader(h.Content, offset, n)
}

// FileEntry is a FileHandle placed within an analyzed folder structure.
// Depth 0 means the file sits directly in the destination root; FolderPath
// is empty in that case.
type FileEntry struct {
	Handle       FileHandle
	FullPath     string
	RelativePath string
	FileName     string
	Depth        int
	FolderPath   string
}

// entryFor wraps a flat handle (no folder placement) as a root-level entry.
func entryFor(h FileHandle) FileEntry {
	return FileEntry{
		Handle:       h,
		FullPath:     h.Name,
		RelativePath: h.Name,
		FileName:     h.Name,
	}
}

func joinPath(segments []string) string {
	return strings.Join(segments, "/")
}
