package api

import (
	"context"
	"net/http"
)

// MultipartInit is the server's answer to a multipart initialization: a
// placeholder document, the storage-level upload identity, and one presigned
// URL per part. PresignedURLs[i] signs part i+1.
type MultipartInit struct {
	DocumentID    string   `json:"documentId"`
	UploadID      string   `json:"uploadId"`
	StorageKey    string   `json:"storageKey"`
	PresignedURLs []string `json:"presignedUrls"`
	TotalParts    int      `json:"totalParts"`
	ChunkSize     int64    `json:"chunkSize"`
}

// CompletedPart pairs a part number with the storage-returned tag. The
// storage backend requires the completion list sorted by part number.
type CompletedPart struct {
	PartNumber int    `json:"partNumber"`
	Tag        string `json:"tag"`
}

// multipartRef identifies one in-progress multipart upload on the wire.
type multipartRef struct {
	DocumentID string `json:"documentId"`
	UploadID   string `json:"uploadId"`
	StorageKey string `json:"storageKey"`
}

// InitMultipart starts a server-coordinated multipart upload.
func (c *Client) InitMultipart(ctx context.Context, fileName string, fileSize int64, mimeType, folderID string) (*MultipartInit, error) {
	req := struct {
		FileName string `json:"fileName"`
		FileSize int64  `json:"fileSize"`
		MimeType string `json:"mimeType"`
		FolderID string `json:"folderId,omitempty"`
	}{FileName: fileName, FileSize: fileSize, MimeType: mimeType, FolderID: folderID}

	var resp MultipartInit
	if err := c.do(ctx, http.MethodPost, "/multipart-upload/init", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignParts requests fresh presigned URLs for the given part numbers of an
// existing multipart upload. Used on resume, where only the parts not yet
// uploaded need new URLs.
func (c *Client) SignParts(ctx context.Context, documentID, uploadID, storageKey string, partNumbers []int) (map[int]string, error) {
	req := struct {
		multipartRef
		PartNumbers []int `json:"partNumbers"`
	}{multipartRef{documentID, uploadID, storageKey}, partNumbers}

	var resp struct {
		PresignedURLs map[int]string `json:"presignedUrls"`
	}
	if err := c.do(ctx, http.MethodPost, "/multipart-upload/sign-parts", req, &resp); err != nil {
		return nil, err
	}
	return resp.PresignedURLs, nil
}

// CompleteMultipart finalizes the upload. parts must be sorted by part
// number and cover every part.
func (c *Client) CompleteMultipart(ctx context.Context, documentID, uploadID, storageKey string, parts []CompletedPart) error {
	req := struct {
		multipartRef
		Parts []CompletedPart `json:"parts"`
	}{multipartRef{documentID, uploadID, storageKey}, parts}

	return c.do(ctx, http.MethodPost, "/multipart-upload/complete", req, nil)
}

// AbortMultipart asks storage to drop the partial upload. Best-effort from
// the caller's perspective: a persisted session may still resume later via a
// fresh init.
func (c *Client) AbortMultipart(ctx context.Context, documentID, uploadID, storageKey string) error {
	return c.do(ctx, http.MethodPost, "/multipart-upload/abort",
		multipartRef{documentID, uploadID, storageKey}, nil)
}
