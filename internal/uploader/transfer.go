package uploader

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/avetisov/docpilot/internal/api"
	"github.com/avetisov/docpilot/internal/common"
	"github.com/avetisov/docpilot/internal/logging"
	"github.com/avetisov/docpilot/internal/netx"
)

// TransferResult is the per-file outcome of the standard (single PUT) path.
type TransferResult struct {
	ID         string
	FileName   string
	DocumentID string
	Err        error
}

// Executor drives small and medium files to storage with one PUT each.
// Files are grouped into fixed-size batches; all batches run concurrently
// with each other, and only the total number of in-flight transfers is
// capped — by the semaphore shared with the multipart path.
type Executor struct {
	storage   *netx.Client
	api       *api.Client
	sem       *semaphore.Weighted
	batchSize int
	policy    RetryPolicy
	log       logging.Logger
}

func NewExecutor(storage *netx.Client, client *api.Client, sem *semaphore.Weighted, batchSize int, policy RetryPolicy, log logging.Logger) *Executor {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Executor{storage: storage, api: client, sem: sem, batchSize: batchSize, policy: policy, log: log}
}

// UploadAll transfers every planned upload and returns one result per input,
// in input order. Per-file failures are isolated: a file that exhausts its
// retries gets its placeholder rolled back and is reported failed, while its
// siblings proceed. onDone, if non-nil, is invoked once per finished file.
func (e *Executor) UploadAll(ctx context.Context, uploads []PlannedUpload, onDone func(TransferResult)) []TransferResult {
	results := make([]TransferResult, len(uploads))

	var wg sync.WaitGroup
	for start := 0; start < len(uploads); start += e.batchSize {
		end := min(start+e.batchSize, len(uploads))

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				results[i] = e.uploadOne(ctx, uploads[i])
				if onDone != nil {
					onDone(results[i])
				}
			}
		}(start, end)
	}
	wg.Wait()

	return results
}

func (e *Executor) uploadOne(ctx context.Context, u PlannedUpload) TransferResult {
	res := TransferResult{ID: u.ID, FileName: u.Entry.FileName, DocumentID: u.DocumentID}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		res.Err = err
		return res
	}
	defer e.sem.Release(1)

	attempt := 0
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			e.log.Warn(ctx, "retrying file transfer", "file", u.Entry.FileName, "attempt", attempt)
		}
		_, err := e.storage.Put(ctx, u.URL, u.Entry.Handle.ContentType, u.Entry.Handle.reader(), u.Entry.Handle.Size)
		return err
	})
	if err == nil {
		e.log.Debug(ctx, "file transferred", "file", u.Entry.FileName, "document_id", u.DocumentID)
		return res
	}

	if errors.Is(err, context.Canceled) {
		res.Err = err
		return res
	}

	// Retry budget exhausted: delete the placeholder so no orphan metadata
	// points at absent bytes, then report the failure.
	e.rollback(ctx, u)
	res.Err = &common.TransferError{FileName: u.Entry.FileName, Err: err}
	return res
}

func (e *Executor) rollback(ctx context.Context, u PlannedUpload) {
	// The rollback must go out even when the call's context has expired.
	ctx = context.WithoutCancel(ctx)
	if err := e.api.DeleteDocument(ctx, u.DocumentID); err != nil {
		e.log.Warn(ctx, "placeholder rollback failed", "document_id", u.DocumentID, "error", err)
		return
	}
	e.log.Info(ctx, "placeholder rolled back", "file", u.Entry.FileName, "document_id", u.DocumentID)
}
