package uploader

import (
	"context"
	"fmt"

	"github.com/avetisov/docpilot/internal/api"
	"github.com/avetisov/docpilot/internal/common"
	"github.com/avetisov/docpilot/internal/logging"
)

// Provisioner creates the folder records a folder upload routes files into.
// Any failure here is fatal for the whole call: transfers only begin once
// the complete path → id map exists, so no file ever references a partial
// tree. Not retried.
type Provisioner struct {
	api *api.Client
	log logging.Logger
}

func NewProvisioner(client *api.Client, log logging.Logger) *Provisioner {
	return &Provisioner{api: client, log: log}
}

// EnsureCategory idempotently creates or reuses the root folder of an
// upload. With an empty parentFolderID the folder is a new root-level
// category; otherwise it becomes a subfolder of the given destination.
func (p *Provisioner) EnsureCategory(ctx context.Context, name, parentFolderID string) (string, error) {
	folder, err := p.api.CreateFolder(ctx, name, parentFolderID, true)
	if err != nil {
		return "", fmt.Errorf("%w: ensure category %q: %v", common.ErrFolderProvisioning, name, err)
	}
	p.log.Info(ctx, "category ready", "name", name, "folder_id", folder.ID)
	return folder.ID, nil
}

// CreateSubtree bulk-creates every FolderNode under rootFolderID and returns
// the path → folder id map. nodes must be in non-decreasing depth order, as
// the analyzer emits them. There is no per-node fallback: a failed bulk
// create aborts the upload.
func (p *Provisioner) CreateSubtree(ctx context.Context, nodes []FolderNode, rootFolderID string) (map[string]string, error) {
	if len(nodes) == 0 {
		return map[string]string{}, nil
	}

	tree := make([]api.FolderTreeNode, len(nodes))
	for i, n := range nodes {
		tree[i] = api.FolderTreeNode{
			Name:       n.Name,
			Path:       n.Path,
			ParentPath: n.ParentPath,
			Depth:      n.Depth,
		}
	}

	folderMap, err := p.api.BulkCreateFolders(ctx, tree, rootFolderID)
	if err != nil {
		return nil, fmt.Errorf("%w: bulk create of %d folders: %v", common.ErrFolderProvisioning, len(nodes), err)
	}

	// A hole in the map would strand files; treat it the same as failure.
	for _, n := range nodes {
		if _, ok := folderMap[n.Path]; !ok {
			return nil, fmt.Errorf("%w: server returned no id for folder %q", common.ErrFolderProvisioning, n.Path)
		}
	}

	p.log.Info(ctx, "subtree provisioned", "folders", len(nodes), "root_folder_id", rootFolderID)
	return folderMap, nil
}
