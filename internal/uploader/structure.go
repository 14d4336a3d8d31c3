package uploader

import (
	"fmt"
	"sort"

	"github.com/avetisov/docpilot/internal/common"
)

// FolderNode is one folder of the analyzed subtree. Path joins every
// ancestor name below the root; ParentPath is empty at depth 0 (a direct
// child of the destination root).
type FolderNode struct {
	Name       string
	Path       string
	ParentPath string
	Depth      int
}

// FolderStructure is the result of analyzing a folder upload: the root name,
// the deduplicated subtree in non-decreasing depth order, and every file
// mapped to its folder path.
type FolderStructure struct {
	RootName string
	Folders  []FolderNode
	Files    []FileEntry
}

// AnalyzeStructure converts path-bearing handles that share one root segment
// into a FolderStructure. Deterministic given deterministic input ordering:
// folders appear in discovery order within each depth.
func AnalyzeStructure(handles []FileHandle) (*FolderStructure, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: empty file list", common.ErrValidation)
	}

	root := ""
	if len(handles[0].Path) > 0 {
		root = handles[0].Path[0]
	}
	if root == "" || root == "." || root == ".." {
		return nil, fmt.Errorf("%w: invalid root folder name %q", common.ErrInvalidStructure, root)
	}

	seen := make(map[string]struct{})
	var folders []FolderNode
	files := make([]FileEntry, 0, len(handles))

	for _, h := range handles {
		if len(h.Path) < 2 {
			return nil, fmt.Errorf("%w: file %q has no hierarchical path", common.ErrInvalidStructure, h.Name)
		}
		if h.Path[0] != root {
			return nil, fmt.Errorf("%w: file %q is outside root %q", common.ErrInvalidStructure, h.Name, root)
		}

		// Strip the root segment; what remains is subfolders + file name.
		rel := h.Path[1:]
		fileName := rel[len(rel)-1]
		folderSegs := rel[:len(rel)-1]

		// Register every strict prefix as a folder, deduplicated by
		// joined path.
		for i := range folderSegs {
			p := joinPath(folderSegs[:i+1])
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			folders = append(folders, FolderNode{
				Name:       folderSegs[i],
				Path:       p,
				ParentPath: joinPath(folderSegs[:i]),
				Depth:      i,
			})
		}

		files = append(files, FileEntry{
			Handle:       h,
			FullPath:     joinPath(h.Path),
			RelativePath: joinPath(rel),
			FileName:     fileName,
			Depth:        len(folderSegs),
			FolderPath:   joinPath(folderSegs),
		})
	}

	// Parents precede children when sorted by depth, so bulk creation
	// needs a single pass.
	sort.SliceStable(folders, func(i, j int) bool { return folders[i].Depth < folders[j].Depth })

	return &FolderStructure{RootName: root, Folders: folders, Files: files}, nil
}
