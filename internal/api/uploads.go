package api

import (
	"context"
	"net/http"
)

// PresignFile is one file in a bulk presign request.
type PresignFile struct {
	FileName     string `json:"fileName"`
	FileType     string `json:"fileType"`
	FileSize     int64  `json:"fileSize"`
	RelativePath string `json:"relativePath,omitempty"`
	FolderID     string `json:"folderId"`
}

// BulkPresignResult mirrors the server response: URLs and document ids are
// positional over the requested files minus SkippedFiles. The server may
// skip files whose content already exists at the destination.
type BulkPresignResult struct {
	PresignedURLs []string `json:"presignedUrls"`
	DocumentIDs   []string `json:"documentIds"`
	SkippedFiles  []string `json:"skippedFiles"`
}

// BulkPresign requests one write URL and placeholder document per file.
func (c *Client) BulkPresign(ctx context.Context, files []PresignFile, folderID string) (*BulkPresignResult, error) {
	req := struct {
		Files    []PresignFile `json:"files"`
		FolderID string        `json:"folderId"`
	}{Files: files, FolderID: folderID}

	var resp BulkPresignResult
	if err := c.do(ctx, http.MethodPost, "/presigned-urls/bulk", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CompleteUploads tells the server which placeholders now have bytes in
// storage, handing them to the processing pipeline. Returns the queued count.
func (c *Client) CompleteUploads(ctx context.Context, documentIDs []string) (int, error) {
	req := struct {
		DocumentIDs []string `json:"documentIds"`
	}{DocumentIDs: documentIDs}

	var resp struct {
		Queued int `json:"queued"`
	}
	if err := c.do(ctx, http.MethodPost, "/presigned-urls/complete", req, &resp); err != nil {
		return 0, err
	}
	return resp.Queued, nil
}

// DeleteDocument removes a placeholder record. Used as the compensating
// rollback when a transfer exhausts its retries.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+id, nil, nil)
}
