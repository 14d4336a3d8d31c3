// Package sessions persists in-flight multipart uploads so a crash or
// restart mid-transfer is recoverable. Sessions live in a local SQLite
// database, expire 24 hours after creation, and are swept opportunistically
// on every store access.
package sessions

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TTL is the fixed lifetime of a session, measured from creation.
const TTL = 24 * time.Hour

// Part is one independently-transferred piece of a multipart upload.
type Part struct {
	Number   int    `json:"number"`
	Size     int64  `json:"size"`
	Tag      string `json:"tag,omitempty"`
	Uploaded bool   `json:"uploaded"`
}

// Session is the durable state of one multipart upload. Progress is always
// uploadedBytes/FileSize, recomputed whenever a part is marked uploaded —
// never set independently.
type Session struct {
	ID          string
	FileName    string
	FileSize    int64
	Hash        string
	ContentType string
	FolderID    string
	DocumentID  string
	UploadID    string
	StorageKey  string
	PartSize    int64
	Parts       []Part
	Progress    float64
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// New builds a fresh session with totalParts pending parts of partSize bytes
// each; the final part carries the remainder.
func New(fileName string, fileSize int64, hash, contentType, folderID, documentID, uploadID, storageKey string, partSize int64, totalParts int) *Session {
	parts := make([]Part, totalParts)
	for i := range parts {
		size := partSize
		if i == totalParts-1 {
			size = fileSize - partSize*int64(totalParts-1)
		}
		parts[i] = Part{Number: i + 1, Size: size}
	}

	now := time.Now().UTC()
	return &Session{
		ID:          uuid.NewString(),
		FileName:    fileName,
		FileSize:    fileSize,
		Hash:        hash,
		ContentType: contentType,
		FolderID:    folderID,
		DocumentID:  documentID,
		UploadID:    uploadID,
		StorageKey:  storageKey,
		PartSize:    partSize,
		Parts:       parts,
		CreatedAt:   now,
		ExpiresAt:   now.Add(TTL),
	}
}

// MarkUploaded records a part's storage tag and recomputes Progress.
func (s *Session) MarkUploaded(number int, tag string) error {
	idx := number - 1
	if idx < 0 || idx >= len(s.Parts) {
		return fmt.Errorf("part %d out of range (total %d)", number, len(s.Parts))
	}
	s.Parts[idx].Tag = tag
	s.Parts[idx].Uploaded = true
	s.recomputeProgress()
	return nil
}

func (s *Session) recomputeProgress() {
	if s.FileSize == 0 {
		s.Progress = 1
		return
	}
	var uploaded int64
	for _, p := range s.Parts {
		if p.Uploaded {
			uploaded += p.Size
		}
	}
	s.Progress = float64(uploaded) / float64(s.FileSize)
}

// PendingParts returns the numbers of parts not yet uploaded, ascending.
func (s *Session) PendingParts() []int {
	var pending []int
	for _, p := range s.Parts {
		if !p.Uploaded {
			pending = append(pending, p.Number)
		}
	}
	return pending
}

// Complete reports whether every part has been uploaded.
func (s *Session) Complete() bool {
	for _, p := range s.Parts {
		if !p.Uploaded {
			return false
		}
	}
	return true
}

// SortedParts returns all parts ordered by part number, as the storage
// backend's completion validation requires.
func (s *Session) SortedParts() []Part {
	out := make([]Part, len(s.Parts))
	copy(out, s.Parts)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Expired reports whether the session is past its TTL at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// PartOffset returns the byte offset of the given part within the file.
func (s *Session) PartOffset(number int) int64 {
	return s.PartSize * int64(number-1)
}
