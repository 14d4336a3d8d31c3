package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/avetisov/docpilot/internal/api"
	"github.com/avetisov/docpilot/internal/common"
	"github.com/avetisov/docpilot/internal/logging"
	"github.com/avetisov/docpilot/internal/netx"
	"github.com/avetisov/docpilot/internal/sessions"
)

// MultipartUploader drives large files to storage as independently-retried
// parts, persisting a resumable session before the first byte moves. A
// failed or cancelled upload leaves its session behind; a later attempt with
// the same (filename, size, folder) identity resumes from the parts already
// uploaded.
type MultipartUploader struct {
	api     *api.Client
	storage *netx.Client
	store   sessions.Repository
	sem     *semaphore.Weighted
	policy  RetryPolicy
	log     logging.Logger
}

func NewMultipartUploader(client *api.Client, storage *netx.Client, store sessions.Repository, sem *semaphore.Weighted, policy RetryPolicy, log logging.Logger) *MultipartUploader {
	return &MultipartUploader{api: client, storage: storage, store: store, sem: sem, policy: policy, log: log}
}

// Upload transfers one file, resuming a persisted session when the file's
// identity matches one. onProgress, if non-nil, receives the session's
// progress fraction after every part completion. Returns the document id on
// success.
func (m *MultipartUploader) Upload(ctx context.Context, entry FileEntry, folderID, hash string, onProgress func(float64)) (string, error) {
	sess, urls, err := m.openSession(ctx, entry, folderID, hash)
	if err != nil {
		return "", err
	}
	return m.run(ctx, entry, sess, urls, onProgress)
}

// Resume continues exactly the given persisted session with a fresh handle
// for the same content, signing URLs only for the parts still pending. Unlike
// Upload it never falls back to identity matching, so the caller's chosen
// session wins even when several share an identity.
func (m *MultipartUploader) Resume(ctx context.Context, entry FileEntry, sess *sessions.Session, onProgress func(float64)) (string, error) {
	urls, err := m.signPending(ctx, sess)
	if err != nil {
		return "", err
	}
	return m.run(ctx, entry, sess, urls, onProgress)
}

func (m *MultipartUploader) run(ctx context.Context, entry FileEntry, sess *sessions.Session, urls map[int]string, onProgress func(float64)) (string, error) {
	log := m.log.With("file", entry.FileName, "session", sess.ID)

	if onProgress != nil && sess.Progress > 0 {
		onProgress(sess.Progress)
	}

	if err := m.uploadParts(ctx, entry, sess, urls, onProgress); err != nil {
		// The session stays persisted for resume. Storage-side state is
		// aborted best-effort; losing that race only costs storage space.
		if !errors.Is(err, context.Canceled) {
			m.abort(ctx, sess)
		}
		return "", err
	}

	if err := m.complete(ctx, sess); err != nil {
		// Parts are all in storage; keep the session so a resume can go
		// straight to completion.
		return "", &common.PartTransferError{
			FileName:  entry.FileName,
			SessionID: sess.ID,
			Err:       fmt.Errorf("completing multipart upload: %w", err),
		}
	}

	if err := m.store.Delete(ctx, sess.ID); err != nil {
		log.Warn(ctx, "failed to remove finished session", "error", err)
	}
	log.Info(ctx, "multipart upload complete", "parts", len(sess.Parts), "document_id", sess.DocumentID)
	return sess.DocumentID, nil
}

// openSession finds a resumable session for the entry or initializes a new
// one, returning presigned URLs for exactly the parts still pending.
func (m *MultipartUploader) openSession(ctx context.Context, entry FileEntry, folderID, hash string) (*sessions.Session, map[int]string, error) {
	sess, err := m.store.FindByIdentity(ctx, entry.FileName, entry.Handle.Size, folderID)
	if err != nil {
		return nil, nil, err
	}

	if sess != nil {
		m.log.Info(ctx, "resuming multipart upload", "file", entry.FileName,
			"session", sess.ID, "pending_parts", len(sess.PendingParts()), "progress", sess.Progress)
		urls, err := m.signPending(ctx, sess)
		if err != nil {
			return nil, nil, err
		}
		return sess, urls, nil
	}

	init, err := m.api.InitMultipart(ctx, entry.FileName, entry.Handle.Size, entry.Handle.ContentType, folderID)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing multipart upload: %w", err)
	}

	sess = sessions.New(entry.FileName, entry.Handle.Size, hash, entry.Handle.ContentType,
		folderID, init.DocumentID, init.UploadID, init.StorageKey, init.ChunkSize, init.TotalParts)

	// Persist before any byte transfer so a crash mid-upload is
	// recoverable.
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("persisting session: %w", err)
	}

	urls := make(map[int]string, len(init.PresignedURLs))
	for i, u := range init.PresignedURLs {
		urls[i+1] = u
	}
	return sess, urls, nil
}

// signPending requests fresh URLs for exactly the parts not yet uploaded.
func (m *MultipartUploader) signPending(ctx context.Context, sess *sessions.Session) (map[int]string, error) {
	pending := sess.PendingParts()
	if len(pending) == 0 {
		return map[int]string{}, nil
	}
	urls, err := m.api.SignParts(ctx, sess.DocumentID, sess.UploadID, sess.StorageKey, pending)
	if err != nil {
		return nil, fmt.Errorf("signing parts for resume: %w", err)
	}
	return urls, nil
}

func (m *MultipartUploader) uploadParts(ctx context.Context, entry FileEntry, sess *sessions.Session, urls map[int]string, onProgress func(float64)) error {
	pending := sess.PendingParts()

	// Parts transfer concurrently under the global cap, but completions
	// are applied to the session one at a time.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, number := range pending {
		g.Go(func() error {
			if err := m.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer m.sem.Release(1)

			tag, err := m.uploadPart(gctx, entry, sess, number, urls[number])
			if err != nil {
				return &common.PartTransferError{
					FileName:   entry.FileName,
					SessionID:  sess.ID,
					PartNumber: number,
					Err:        err,
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err := sess.MarkUploaded(number, tag); err != nil {
				return err
			}
			if err := m.store.Save(ctx, sess); err != nil {
				return fmt.Errorf("persisting part %d: %w", number, err)
			}
			if onProgress != nil {
				onProgress(sess.Progress)
			}
			return nil
		})
	}

	return g.Wait()
}

func (m *MultipartUploader) uploadPart(ctx context.Context, entry FileEntry, sess *sessions.Session, number int, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("no presigned url for part %d", number)
	}

	part := sess.Parts[number-1]
	offset := sess.PartOffset(number)

	var tag string
	attempt := 0
	err := m.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			m.log.Warn(ctx, "retrying part transfer", "file", entry.FileName, "part", number, "attempt", attempt)
		}
		var err error
		tag, err = m.storage.Put(ctx, url, entry.Handle.ContentType, entry.Handle.rangeReader(offset, part.Size), part.Size)
		return err
	})
	if err != nil {
		return "", err
	}
	m.log.Debug(ctx, "part uploaded", "file", entry.FileName, "part", number, "size", part.Size)
	return tag, nil
}

func (m *MultipartUploader) complete(ctx context.Context, sess *sessions.Session) error {
	parts := make([]api.CompletedPart, 0, len(sess.Parts))
	for _, p := range sess.SortedParts() {
		parts = append(parts, api.CompletedPart{PartNumber: p.Number, Tag: p.Tag})
	}

	return m.policy.Do(ctx, func(ctx context.Context) error {
		return m.api.CompleteMultipart(ctx, sess.DocumentID, sess.UploadID, sess.StorageKey, parts)
	})
}

// abort asks storage to discard the partial object. Best-effort: failures
// are logged, never fatal, and the persisted session is untouched.
func (m *MultipartUploader) abort(ctx context.Context, sess *sessions.Session) {
	ctx = context.WithoutCancel(ctx)
	if err := m.api.AbortMultipart(ctx, sess.DocumentID, sess.UploadID, sess.StorageKey); err != nil {
		m.log.Warn(ctx, "multipart abort failed", "session", sess.ID, "error", err)
	}
}

// Abort discards a persisted session: best-effort storage-side abort, then
// removal of the session row. Used for explicit cancellation.
func (m *MultipartUploader) Abort(ctx context.Context, sess *sessions.Session) error {
	m.abort(ctx, sess)
	return m.store.Delete(ctx, sess.ID)
}
