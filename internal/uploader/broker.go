package uploader

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/avetisov/docpilot/internal/api"
	"github.com/avetisov/docpilot/internal/logging"
)

// PresignRequest pairs a file entry with its resolved destination folder.
type PresignRequest struct {
	Entry    FileEntry
	FolderID string
}

// PlannedUpload is one file the server actually issued a URL and placeholder
// for. ID is a client-side correlation id: everything downstream of the
// broker joins on it, never on array position.
type PlannedUpload struct {
	ID         string
	Entry      FileEntry
	FolderID   string
	URL        string
	DocumentID string
}

// PresignPlan is the broker's output: uploads to execute plus the entries
// the server skipped as already present (content-identical) at the
// destination. Skipped files count as successful for reporting.
type PresignPlan struct {
	Uploads []PlannedUpload
	Skipped []FileEntry
}

// Broker obtains presigned write URLs and placeholder ids in bulk.
type Broker struct {
	api *api.Client
	log logging.Logger
}

func NewBroker(client *api.Client, log logging.Logger) *Broker {
	return &Broker{api: client, log: log}
}

// Plan requests URLs for every entry. The server omits skipped files from
// the url/id arrays, so the remaining arrays are re-aligned positionally
// after removing skipped entries — the counts are validated first, since the
// wire contract identifies skips by file name only.
func (b *Broker) Plan(ctx context.Context, requests []PresignRequest, destinationFolderID string) (*PresignPlan, error) {
	if len(requests) == 0 {
		return &PresignPlan{}, nil
	}

	files := make([]api.PresignFile, len(requests))
	for i, r := range requests {
		files[i] = api.PresignFile{
			FileName:     r.Entry.FileName,
			FileType:     r.Entry.Handle.ContentType,
			FileSize:     r.Entry.Handle.Size,
			RelativePath: r.Entry.RelativePath,
			FolderID:     r.FolderID,
		}
	}

	resp, err := b.api.BulkPresign(ctx, files, destinationFolderID)
	if err != nil {
		return nil, fmt.Errorf("requesting upload urls: %w", err)
	}

	if len(resp.PresignedURLs) != len(resp.DocumentIDs) {
		return nil, fmt.Errorf("presign response misaligned: %d urls vs %d document ids",
			len(resp.PresignedURLs), len(resp.DocumentIDs))
	}
	if len(resp.PresignedURLs)+len(resp.SkippedFiles) != len(requests) {
		return nil, fmt.Errorf("presign response misaligned: %d urls + %d skipped for %d files",
			len(resp.PresignedURLs), len(resp.SkippedFiles), len(requests))
	}

	// Budget of skips per name: duplicate names across folders are legal.
	skippable := make(map[string]int, len(resp.SkippedFiles))
	for _, name := range resp.SkippedFiles {
		skippable[name]++
	}

	plan := &PresignPlan{Uploads: make([]PlannedUpload, 0, len(resp.PresignedURLs))}
	next := 0
	for _, r := range requests {
		if skippable[r.Entry.FileName] > 0 {
			skippable[r.Entry.FileName]--
			plan.Skipped = append(plan.Skipped, r.Entry)
			continue
		}
		plan.Uploads = append(plan.Uploads, PlannedUpload{
			ID:         uuid.NewString(),
			Entry:      r.Entry,
			FolderID:   r.FolderID,
			URL:        resp.PresignedURLs[next],
			DocumentID: resp.DocumentIDs[next],
		})
		next++
	}
	if next != len(resp.PresignedURLs) {
		return nil, fmt.Errorf("presign response misaligned: skipped files %v not found in request", resp.SkippedFiles)
	}

	b.log.Info(ctx, "upload urls issued", "requested", len(requests),
		"issued", len(plan.Uploads), "skipped", len(plan.Skipped))
	return plan, nil
}
