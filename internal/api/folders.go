package api

import (
	"context"
	"net/http"
)

type Folder struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ParentFolderID string `json:"parentFolderId,omitempty"`
}

// FolderTreeNode describes one folder of a subtree in a bulk-create request.
// Depth 0 is a direct child of the destination root; parents always precede
// children in the slice.
type FolderTreeNode struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	ParentPath string `json:"parentPath,omitempty"`
	Depth      int    `json:"depth"`
}

// CreateFolder creates a root-level or nested folder. With reuseExisting the
// server treats the call as create-or-reuse, so retries and concurrent calls
// resolve to the same folder.
func (c *Client) CreateFolder(ctx context.Context, name, parentFolderID string, reuseExisting bool) (*Folder, error) {
	req := struct {
		Name           string `json:"name"`
		ParentFolderID string `json:"parentFolderId,omitempty"`
		ReuseExisting  bool   `json:"reuseExisting,omitempty"`
	}{Name: name, ParentFolderID: parentFolderID, ReuseExisting: reuseExisting}

	var resp struct {
		Folder Folder `json:"folder"`
	}
	if err := c.do(ctx, http.MethodPost, "/folders", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Folder, nil
}

// BulkCreateFolders creates an entire subtree in one request and returns the
// path → folder id map for every created (or reused) node.
func (c *Client) BulkCreateFolders(ctx context.Context, nodes []FolderTreeNode, parentFolderID string) (map[string]string, error) {
	req := struct {
		FolderTree     []FolderTreeNode `json:"folderTree"`
		ParentFolderID string           `json:"parentFolderId"`
	}{FolderTree: nodes, ParentFolderID: parentFolderID}

	var resp struct {
		Count     int               `json:"count"`
		FolderMap map[string]string `json:"folderMap"`
	}
	if err := c.do(ctx, http.MethodPost, "/folders/bulk", req, &resp); err != nil {
		return nil, err
	}
	return resp.FolderMap, nil
}

// ListFolders returns every folder visible to the caller.
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var resp struct {
		Folders []Folder `json:"folders"`
	}
	if err := c.do(ctx, http.MethodGet, "/folders?includeAll=true", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Folders, nil
}
