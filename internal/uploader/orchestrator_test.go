package uploader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetisov/docpilot/internal/api"
	"github.com/avetisov/docpilot/internal/common"
	"github.com/avetisov/docpilot/internal/logging"
	"github.com/avetisov/docpilot/internal/netx"
)

func testOrchestrator(t *testing.T, b *fakeBackend, opts Options) *Orchestrator {
	t.Helper()
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = time.Millisecond
	}
	return New(b.client(), netx.New(5*time.Second), testStore(t), opts, logging.Discard())
}

func TestOrchestrator_SingleSmallFile(t *testing.T) {
	b := newFakeBackend(t)
	o := testOrchestrator(t, b, Options{})

	events := make(chan ProgressEvent, 64)
	collected := make(chan []ProgressEvent, 1)
	go collectEvents(events, collected)

	res, err := o.UploadFile(context.Background(), memHandle("report.pdf", 3, "report.pdf"), "fld-dest", events)
	require.NoError(t, err)

	assert.Equal(t, 1, res.SuccessCount)
	assert.Zero(t, res.FailureCount)
	assert.Equal(t, 1, res.QueuedCount)

	assert.Equal(t, 1, b.puts["doc-1"])
	assert.Equal(t, int64(3), b.putBodies["doc-1"])
	assert.Equal(t, 1, b.notifyCalls)
	require.Len(t, b.notified, 1)
	assert.Equal(t, []string{"doc-1"}, b.notified[0])

	evs := <-collected
	require.NotEmpty(t, evs)
	final := evs[len(evs)-1]
	assert.Equal(t, StageComplete, final.Stage)
	assert.Equal(t, float64(100), final.Percentage)
	for i := 1; i < len(evs); i++ {
		assert.GreaterOrEqual(t, evs[i].Percentage, evs[i-1].Percentage,
			"percentage must never decrease")
	}
}

func TestOrchestrator_FolderMapsFilesToProvisionedFolders(t *testing.T) {
	b := newFakeBackend(t)
	o := testOrchestrator(t, b, Options{})

	handles := []FileHandle{
		memHandle("a.pdf", 4, "root", "a.pdf"),
		memHandle("b.pdf", 4, "root", "b.pdf"),
		memHandle("c.pdf", 4, "root", "sub", "c.pdf"),
	}
	res, err := o.UploadFolder(context.Background(), handles, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SuccessCount)

	// One category create for the root, one bulk call with only "sub".
	assert.Equal(t, []string{"root"}, b.createFolder)
	require.Len(t, b.bulkNodes, 1)
	require.Len(t, b.bulkNodes[0], 1)
	assert.Equal(t, "sub", b.bulkNodes[0][0].Path)

	require.Len(t, b.presignFiles, 1)
	byName := map[string]api.PresignFile{}
	for _, f := range b.presignFiles[0] {
		byName[f.FileName] = f
	}
	assert.Equal(t, "fld-root", byName["a.pdf"].FolderID)
	assert.Equal(t, "fld-root", byName["b.pdf"].FolderID)
	assert.Equal(t, "fld-sub", byName["c.pdf"].FolderID)
	assert.Equal(t, "sub/c.pdf", byName["c.pdf"].RelativePath)
}

func TestOrchestrator_ServerSkippedCountAsSuccess(t *testing.T) {
	b := newFakeBackend(t)
	b.skipNames = []string{"b.pdf"}
	o := testOrchestrator(t, b, Options{})

	handles := []FileHandle{
		memHandle("a.pdf", 4, "a.pdf"),
		memHandle("b.pdf", 4, "b.pdf"),
	}
	res, err := o.UploadFiles(context.Background(), handles, "fld-dest", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.SuccessCount)
	assert.Zero(t, res.FailureCount)
	assert.Len(t, b.puts, 1, "the skipped file must not be transferred")
	assert.Equal(t, []string{"doc-1"}, b.notified[0])
}

func TestOrchestrator_PartialFailureSurvives(t *testing.T) {
	b := newFakeBackend(t)
	b.failPuts["doc-1"] = 10 // beyond any retry budget
	o := testOrchestrator(t, b, Options{MaxAttempts: 2})

	handles := []FileHandle{
		memHandle("a.pdf", 4, "a.pdf"),
		memHandle("b.pdf", 4, "b.pdf"),
	}
	res, err := o.UploadFiles(context.Background(), handles, "fld-dest", nil)
	require.NoError(t, err, "one failed file must not fail the call")

	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "a.pdf", res.Errors[0].FileName)
	var te *common.TransferError
	assert.True(t, errors.As(res.Errors[0].Err, &te))

	// The orphaned placeholder is rolled back, the sibling registered.
	assert.Equal(t, []string{"doc-1"}, b.deletedDocs)
	assert.Equal(t, []string{"doc-2"}, b.notified[0])
}

func TestOrchestrator_NotificationFailureKeepsResult(t *testing.T) {
	b := newFakeBackend(t)
	b.notifyStatuses = []int{500, 500}
	o := testOrchestrator(t, b, Options{MaxAttempts: 2})

	events := make(chan ProgressEvent, 64)
	collected := make(chan []ProgressEvent, 1)
	go collectEvents(events, collected)

	res, err := o.UploadFile(context.Background(), memHandle("a.pdf", 4, "a.pdf"), "fld-dest", events)

	var ne *common.NotificationError
	require.ErrorAs(t, err, &ne)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.SuccessCount, "the bytes made it to storage")
	assert.Zero(t, res.QueuedCount)
	assert.Equal(t, 1, b.puts["doc-1"])

	evs := <-collected
	final := evs[len(evs)-1]
	assert.Equal(t, StageError, final.Stage)
	assert.Contains(t, final.Detail, "retry registration")
}

func TestOrchestrator_LargeFileTakesMultipartPath(t *testing.T) {
	b := newFakeBackend(t)
	o := testOrchestrator(t, b, Options{MultipartThreshold: 200})

	res, err := o.UploadFile(context.Background(), memHandle("big.pdf", 250, "big.pdf"), "fld-dest", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 1, b.initCalls)
	assert.Zero(t, b.presignCalls, "no standard presign for a multipart-only call")
	assert.Equal(t, 5, len(b.completedParts[0]))
	assert.Equal(t, []string{"doc-mp"}, b.notified[0])
}

func TestOrchestrator_MixedSizesShareOneNotification(t *testing.T) {
	b := newFakeBackend(t)
	o := testOrchestrator(t, b, Options{MultipartThreshold: 200})

	handles := []FileHandle{
		memHandle("small.pdf", 4, "small.pdf"),
		memHandle("big.pdf", 250, "big.pdf"),
	}
	res, err := o.UploadFiles(context.Background(), handles, "fld-dest", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 2, res.QueuedCount)
	require.Equal(t, 1, b.notifyCalls)
	assert.ElementsMatch(t, []string{"doc-1", "doc-mp"}, b.notified[0])
}

func TestOrchestrator_EmptyFileListIsValidationError(t *testing.T) {
	b := newFakeBackend(t)
	o := testOrchestrator(t, b, Options{})

	_, err := o.UploadFiles(context.Background(), nil, "fld-dest", nil)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestOrchestrator_AllFilesFiltered(t *testing.T) {
	b := newFakeBackend(t)
	o := testOrchestrator(t, b, Options{})

	handles := []FileHandle{memHandle(".DS_Store", 4, "root", ".DS_Store")}
	res, err := o.UploadFolder(context.Background(), handles, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.SkippedCount)
	assert.Zero(t, res.SuccessCount)
	assert.Empty(t, b.createFolder, "no provisioning for an empty upload")
	assert.Zero(t, b.notifyCalls)
}

func TestOrchestrator_ActiveRegistryAndCancel(t *testing.T) {
	b := newFakeBackend(t)
	o := testOrchestrator(t, b, Options{})

	assert.Empty(t, o.Active())
	assert.False(t, o.Cancel("nope"))
}

func TestOrchestrator_CancelPreservesMultipartSession(t *testing.T) {
	b := newFakeBackend(t)
	b.stallPuts["mp/3"] = true
	b.stallPuts["mp/4"] = true
	b.stallPuts["mp/5"] = true
	store := testStore(t)
	o := orchestratorWithStore(t, b, store)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.UploadFile(context.Background(), memHandle("big.pdf", 250, "big.pdf"), "fld-dest", nil)
		done <- outcome{res, err}
	}()

	// Wait until at least one part is durable, then pull the plug.
	var id string
	require.Eventually(t, func() bool {
		sess, err := store.FindByIdentity(context.Background(), "big.pdf", 250, "fld-dest")
		if err != nil || sess == nil || !sess.Parts[0].Uploaded || !sess.Parts[1].Uploaded {
			return false
		}
		active := o.Active()
		if len(active) != 1 {
			return false
		}
		id = active[0].ID
		return true
	}, 5*time.Second, 5*time.Millisecond)
	require.True(t, o.Cancel(id))

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, 1, out.res.FailureCount)
	require.Len(t, out.res.Errors, 1)
	assert.ErrorIs(t, out.res.Errors[0].Err, context.Canceled)

	// Bytes already in storage stay put: no storage-side abort, and the
	// session survives with its uploaded parts for a later resume.
	b.mu.Lock()
	aborts := b.abortCalls
	b.mu.Unlock()
	assert.Zero(t, aborts)

	sess, err := store.FindByIdentity(context.Background(), "big.pdf", 250, "fld-dest")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.Parts[0].Uploaded)
	assert.Contains(t, sess.PendingParts(), 5)
	assert.False(t, o.Cancel(id), "finished call left the registry")
}
