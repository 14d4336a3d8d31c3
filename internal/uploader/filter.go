package uploader

import (
	"fmt"
	"path"
	"strings"
)

// hiddenNames are exact (case-insensitive) system file names dropped before
// any network call.
var hiddenNames = map[string]struct{}{
	".ds_store":   {},
	"thumbs.db":   {},
	"desktop.ini": {},
	"icon\r":      {},
}

// defaultAllowedExtensions is the document set the processing pipeline can
// handle. Overridable per Filter.
var defaultAllowedExtensions = []string{
	".pdf", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx",
	".txt", ".md", ".rtf", ".csv", ".json", ".xml", ".html", ".htm",
	".png", ".jpg", ".jpeg", ".gif", ".webp",
}

// SkippedFile records a dropped handle together with the reason, so no file
// ever disappears silently.
type SkippedFile struct {
	Handle FileHandle
	Reason string
}

// Filter removes hidden/system entries and disallowed file types. Pure: no
// I/O, no network.
type Filter struct {
	allowed map[string]struct{}
}

// NewFilter builds a filter for the given extension allow-list (leading dot,
// any case). A nil list means the default document set.
func NewFilter(allowedExtensions []string) *Filter {
	if allowedExtensions == nil {
		allowedExtensions = defaultAllowedExtensions
	}
	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return &Filter{allowed: allowed}
}

// Apply splits handles into valid and skipped. Every input lands in exactly
// one of the two lists.
func (f *Filter) Apply(handles []FileHandle) (valid []FileHandle, skipped []SkippedFile) {
	valid = make([]FileHandle, 0, len(handles))
	for _, h := range handles {
		if reason := f.reject(h); reason != "" {
			skipped = append(skipped, SkippedFile{Handle: h, Reason: reason})
			continue
		}
		valid = append(valid, h)
	}
	return valid, skipped
}

func (f *Filter) reject(h FileHandle) string {
	// A hidden segment anywhere in the path hides the file too.
	for _, seg := range h.Path {
		if hidden(seg) {
			return fmt.Sprintf("hidden or system entry %q", seg)
		}
	}
	if len(h.Path) == 0 && hidden(h.Name) {
		return fmt.Sprintf("hidden or system entry %q", h.Name)
	}

	ext := strings.ToLower(path.Ext(h.Name))
	if ext == "" {
		return "file has no extension"
	}
	if _, ok := f.allowed[ext]; !ok {
		return fmt.Sprintf("file type %s is not supported", ext)
	}
	return ""
}

func hidden(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := hiddenNames[lower]; ok {
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}
