package uploader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/avetisov/docpilot/internal/api"
	"github.com/avetisov/docpilot/internal/common"
	"github.com/avetisov/docpilot/internal/logging"
	"github.com/avetisov/docpilot/internal/netx"
	"github.com/avetisov/docpilot/internal/sessions"
)

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	// MultipartThreshold routes files at or above this many bytes through
	// the multipart path.
	MultipartThreshold int64

	// MaxConcurrent caps simultaneously in-flight transfers globally,
	// across both paths and all batches.
	MaxConcurrent int64

	// BatchSize groups standard-path files into batches; all batches run
	// concurrently.
	BatchSize int

	// MaxAttempts and RetryBaseDelay parameterize the shared retry policy.
	MaxAttempts    int
	RetryBaseDelay time.Duration

	// HashTimeout bounds content hashing per file.
	HashTimeout time.Duration

	// AllowedExtensions overrides the filter's allow-list when non-nil.
	AllowedExtensions []string
}

func (o Options) withDefaults() Options {
	if o.MultipartThreshold <= 0 {
		o.MultipartThreshold = 100 << 20
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 500 * time.Millisecond
	}
	if o.HashTimeout <= 0 {
		o.HashTimeout = 30 * time.Second
	}
	return o
}

// FileError is one file's failure within an otherwise-surviving call.
type FileError struct {
	FileName string
	Err      error
}

// Result aggregates a call's outcome. Per-file failures never make the call
// all-or-nothing: partial success is always representable.
type Result struct {
	// SuccessCount includes files the server skipped as already present.
	SuccessCount int
	FailureCount int

	// SkippedCount are files the local filter dropped before any network
	// activity.
	SkippedCount int

	// QueuedCount is the number of documents the processing pipeline
	// acknowledged.
	QueuedCount int

	Errors []FileError
}

// ActiveUpload describes one in-flight call in the orchestrator's registry.
type ActiveUpload struct {
	ID      string
	Kind    string
	Started time.Time
}

// Orchestrator sequences a full upload call: filter, analyze, provision,
// request URLs, transfer, notify. One Orchestrator serves many concurrent
// calls; the session store is the only state shared between them.
type Orchestrator struct {
	store       sessions.Repository
	filter      *Filter
	provisioner *Provisioner
	broker      *Broker
	executor    *Executor
	multipart   *MultipartUploader
	notifier    *Notifier
	hasher      Hasher
	opts        Options
	log         logging.Logger

	mu     sync.Mutex
	active map[string]*activeCall
}

type activeCall struct {
	ActiveUpload
	cancel context.CancelFunc
}

func New(client *api.Client, storage *netx.Client, store sessions.Repository, opts Options, log logging.Logger) *Orchestrator {
	opts = opts.withDefaults()

	sem := semaphore.NewWeighted(opts.MaxConcurrent)
	policy := RetryPolicy{
		MaxAttempts: opts.MaxAttempts,
		BaseDelay:   opts.RetryBaseDelay,
		Retryable:   common.Retryable,
	}

	return &Orchestrator{
		store:       store,
		filter:      NewFilter(opts.AllowedExtensions),
		provisioner: NewProvisioner(client, log),
		broker:      NewBroker(client, log),
		executor:    NewExecutor(netxOrDefault(storage), client, sem, opts.BatchSize, policy, log),
		multipart:   NewMultipartUploader(client, netxOrDefault(storage), store, sem, policy, log),
		notifier:    NewNotifier(client, policy, log),
		hasher:      Hasher{Timeout: opts.HashTimeout},
		opts:        opts,
		log:         log,
		active:      make(map[string]*activeCall),
	}
}

func netxOrDefault(storage *netx.Client) *netx.Client {
	if storage == nil {
		return netx.New(5 * time.Minute)
	}
	return storage
}

// UploadFile uploads a single file into the given destination folder.
func (o *Orchestrator) UploadFile(ctx context.Context, handle FileHandle, folderID string, events chan<- ProgressEvent) (*Result, error) {
	return o.UploadFiles(ctx, []FileHandle{handle}, folderID, events)
}

// UploadFiles uploads a flat set of files into the given destination folder.
// The events channel, if non-nil, receives the call's progress stream and is
// closed when the call returns.
func (o *Orchestrator) UploadFiles(ctx context.Context, handles []FileHandle, folderID string, events chan<- ProgressEvent) (*Result, error) {
	ctx, done := o.begin(ctx, "files")
	defer done()
	em := newEmitter(events)
	defer em.close()

	if len(handles) == 0 {
		return o.fail(ctx, em, fmt.Errorf("%w: empty file list", common.ErrValidation))
	}

	em.stage(StageFiltering, "filtering files", pctFiltering)
	valid, skipped := o.filter.Apply(handles)
	o.logSkipped(ctx, skipped)

	requests := make([]PresignRequest, len(valid))
	for i, h := range valid {
		requests[i] = PresignRequest{Entry: entryFor(h), FolderID: folderID}
	}

	return o.run(ctx, em, requests, folderID, len(skipped))
}

// UploadFolder uploads an entire folder tree. With an empty parentFolderID
// the tree's root becomes a new root-level category; otherwise it is created
// as a subfolder of the given destination.
func (o *Orchestrator) UploadFolder(ctx context.Context, handles []FileHandle, parentFolderID string, events chan<- ProgressEvent) (*Result, error) {
	ctx, done := o.begin(ctx, "folder")
	defer done()
	em := newEmitter(events)
	defer em.close()

	if len(handles) == 0 {
		return o.fail(ctx, em, fmt.Errorf("%w: empty file list", common.ErrValidation))
	}

	em.stage(StageFiltering, "filtering files", pctFiltering)
	valid, skipped := o.filter.Apply(handles)
	o.logSkipped(ctx, skipped)
	if len(valid) == 0 {
		res := &Result{SkippedCount: len(skipped)}
		em.stage(StageComplete, "nothing to upload", pctComplete)
		return res, nil
	}

	em.stage(StageAnalyzing, "analyzing folder structure", pctAnalyzing)
	structure, err := AnalyzeStructure(valid)
	if err != nil {
		return o.fail(ctx, em, err)
	}

	em.stage(StageProvisioning, "creating folders", pctProvisioning)
	rootID, err := o.provisioner.EnsureCategory(ctx, structure.RootName, parentFolderID)
	if err != nil {
		return o.fail(ctx, em, err)
	}
	folderMap, err := o.provisioner.CreateSubtree(ctx, structure.Folders, rootID)
	if err != nil {
		return o.fail(ctx, em, err)
	}

	// Transfers may only start once every file resolves to a folder id.
	requests := make([]PresignRequest, len(structure.Files))
	for i, entry := range structure.Files {
		fid := rootID
		if entry.FolderPath != "" {
			fid = folderMap[entry.FolderPath]
		}
		requests[i] = PresignRequest{Entry: entry, FolderID: fid}
	}

	return o.run(ctx, em, requests, rootID, len(skipped))
}

// run is the shared tail of every call: URL brokering, transfer, and the
// completion hand-off.
func (o *Orchestrator) run(ctx context.Context, em *emitter, requests []PresignRequest, destinationFolderID string, skippedCount int) (*Result, error) {
	var failures []FileError

	// Route per file by size, and hash multipart candidates up front so a
	// hash timeout fails the file before any network call is spent on it.
	var small []PresignRequest
	type largeUpload struct {
		req  PresignRequest
		hash string
	}
	var large []largeUpload
	for _, r := range requests {
		if r.Entry.Handle.Size >= o.opts.MultipartThreshold {
			hash, err := o.hasher.ContentHash(ctx, r.Entry.Handle)
			if err != nil {
				failures = append(failures, FileError{FileName: r.Entry.FileName, Err: err})
				continue
			}
			large = append(large, largeUpload{req: r, hash: hash})
		} else {
			small = append(small, r)
		}
	}

	em.stage(StageRequestingURLs, "requesting upload urls", pctRequesting)
	plan, err := o.broker.Plan(ctx, small, destinationFolderID)
	if err != nil {
		return o.fail(ctx, em, err)
	}

	total := len(plan.Uploads) + len(large)
	em.stage(StageTransferring, "transferring files", pctTransferStart)

	var (
		pm      sync.Mutex
		done    float64
		docIDs  []string
		success int
	)
	advance := func(units float64) {
		done += units
		em.transferProgress(done, total)
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		o.executor.UploadAll(ctx, plan.Uploads, func(r TransferResult) {
			pm.Lock()
			defer pm.Unlock()
			if r.Err != nil {
				failures = append(failures, FileError{FileName: r.FileName, Err: r.Err})
			} else {
				docIDs = append(docIDs, r.DocumentID)
				success++
			}
			advance(1)
		})
		return nil
	})
	for _, lu := range large {
		g.Go(func() error {
			var last float64
			docID, err := o.multipart.Upload(ctx, lu.req.Entry, lu.req.FolderID, lu.hash, func(frac float64) {
				pm.Lock()
				defer pm.Unlock()
				advance(frac - last)
				last = frac
			})
			pm.Lock()
			defer pm.Unlock()
			if err != nil {
				failures = append(failures, FileError{FileName: lu.req.Entry.FileName, Err: err})
			} else {
				docIDs = append(docIDs, docID)
				success++
			}
			advance(1 - last)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{
		SuccessCount: success + len(plan.Skipped),
		FailureCount: len(failures),
		SkippedCount: skippedCount,
		Errors:       failures,
	}

	em.stage(StageNotifying, "registering uploads", pctNotifying)
	queued, err := o.notifier.NotifyCompletion(ctx, docIDs)
	if err != nil {
		em.emit(StageError, err.Error(), em.last, "uploads are stored; retry registration instead of re-uploading")
		return res, err
	}
	res.QueuedCount = queued

	em.emit(StageComplete,
		fmt.Sprintf("uploaded %d, failed %d, skipped %d", res.SuccessCount, res.FailureCount, res.SkippedCount),
		pctComplete, "")
	return res, nil
}

// PendingSessions lists resumable multipart sessions, newest first.
func (o *Orchestrator) PendingSessions(ctx context.Context) ([]*sessions.Session, error) {
	return o.store.ListPending(ctx)
}

// ResumeSession continues a persisted multipart session using a fresh handle
// for the same content, then performs the completion hand-off.
func (o *Orchestrator) ResumeSession(ctx context.Context, sessionID string, handle FileHandle, events chan<- ProgressEvent) (*Result, error) {
	ctx, done := o.begin(ctx, "resume")
	defer done()
	em := newEmitter(events)
	defer em.close()

	sess, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return o.fail(ctx, em, err)
	}
	if sess == nil {
		return o.fail(ctx, em, fmt.Errorf("%w: %s", common.ErrSessionNotFound, sessionID))
	}
	if handle.Name != sess.FileName || handle.Size != sess.FileSize {
		return o.fail(ctx, em, fmt.Errorf("%w: handle %q (%d bytes) does not match session %q (%d bytes)",
			common.ErrValidation, handle.Name, handle.Size, sess.FileName, sess.FileSize))
	}

	em.stage(StageTransferring, "resuming upload", pctTransferStart)
	entry := FileEntry{Handle: handle, FullPath: sess.FileName, RelativePath: sess.FileName, FileName: sess.FileName}

	docID, err := o.multipart.Resume(ctx, entry, sess, func(frac float64) {
		em.transferProgress(frac, 1)
	})
	if err != nil {
		return o.fail(ctx, em, err)
	}

	em.stage(StageNotifying, "registering upload", pctNotifying)
	queued, err := o.notifier.NotifyCompletion(ctx, []string{docID})
	if err != nil {
		em.emit(StageError, err.Error(), em.last, "upload is stored; retry registration instead of re-uploading")
		return &Result{SuccessCount: 1}, err
	}

	em.stage(StageComplete, "upload resumed and completed", pctComplete)
	return &Result{SuccessCount: 1, QueuedCount: queued}, nil
}

// CancelSession discards a persisted session: best-effort storage-side
// abort, then removal of the local record.
func (o *Orchestrator) CancelSession(ctx context.Context, sessionID string) error {
	sess, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("%w: %s", common.ErrSessionNotFound, sessionID)
	}
	return o.multipart.Abort(ctx, sess)
}

// Active lists in-flight calls, oldest first.
func (o *Orchestrator) Active() []ActiveUpload {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ActiveUpload, 0, len(o.active))
	for _, c := range o.active {
		out = append(out, c.ActiveUpload)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Cancel aborts an in-flight call. In-flight requests are interrupted and no
// new batches start; bytes already durable in storage stay put, so any
// multipart session involved remains resumable.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.active[id]
	if !ok {
		return false
	}
	c.cancel()
	return true
}

func (o *Orchestrator) begin(ctx context.Context, kind string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	c := &activeCall{
		ActiveUpload: ActiveUpload{ID: uuid.NewString(), Kind: kind, Started: time.Now()},
		cancel:       cancel,
	}

	o.mu.Lock()
	o.active[c.ID] = c
	o.mu.Unlock()

	return ctx, func() {
		o.mu.Lock()
		delete(o.active, c.ID)
		o.mu.Unlock()
		cancel()
	}
}

func (o *Orchestrator) fail(ctx context.Context, em *emitter, err error) (*Result, error) {
	o.log.Error(ctx, "upload call failed", "error", err)
	em.emit(StageError, err.Error(), em.last, "")
	return nil, err
}

func (o *Orchestrator) logSkipped(ctx context.Context, skipped []SkippedFile) {
	for _, s := range skipped {
		o.log.Info(ctx, "file skipped", "file", s.Handle.Name, "reason", s.Reason)
	}
}
