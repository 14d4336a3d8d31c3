package uploader

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/avetisov/docpilot/internal/common"
	"github.com/avetisov/docpilot/internal/logging"
	"github.com/avetisov/docpilot/internal/netx"
	"github.com/avetisov/docpilot/internal/sessions"
)

func testMultipart(b *fakeBackend, store sessions.Repository) *MultipartUploader {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Retryable: common.Retryable}
	return NewMultipartUploader(b.client(), netx.New(5*time.Second), store, semaphore.NewWeighted(4), policy, logging.Discard())
}

func TestMultipart_UploadsAllParts(t *testing.T) {
	b := newFakeBackend(t) // chunkSize 50
	store := testStore(t)
	m := testMultipart(b, store)
	ctx := context.Background()

	entry := entryFor(memHandle("big.pdf", 250))
	var fractions []float64
	docID, err := m.Upload(ctx, entry, "fld-1", "hash-1", func(f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-mp", docID)

	// 250 bytes at 50-byte parts: exactly 5 PUTs, one per part.
	for i := 1; i <= 5; i++ {
		assert.Equal(t, 1, b.puts[partPath(i)], "part %d", i)
	}

	// Completion lists all parts sorted by part number with verbatim tags.
	require.Len(t, b.completedParts, 1)
	parts := b.completedParts[0]
	require.Len(t, parts, 5)
	for i, p := range parts {
		assert.Equal(t, i+1, p.PartNumber)
		assert.Equal(t, fmt.Sprintf("tag-mp/%d", i+1), p.Tag)
	}

	// Progress only ever grows and ends at exactly 1.
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
	assert.Equal(t, 1.0, fractions[len(fractions)-1])

	// The finished session is gone.
	found, err := store.FindByIdentity(ctx, "big.pdf", 250, "fld-1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMultipart_SessionPersistedBeforeTransfer(t *testing.T) {
	b := newFakeBackend(t)
	b.failPuts[partPath(1)] = 10
	b.failPuts[partPath(2)] = 10
	b.failPuts[partPath(3)] = 10
	b.failPuts[partPath(4)] = 10
	b.failPuts[partPath(5)] = 10
	store := testStore(t)
	m := testMultipart(b, store)
	ctx := context.Background()

	entry := entryFor(memHandle("big.pdf", 250))
	_, err := m.Upload(ctx, entry, "fld-1", "hash-1", nil)

	var pe *common.PartTransferError
	require.ErrorAs(t, err, &pe)

	// The session survives the failure for later resume, and a
	// best-effort storage abort went out.
	sess, err := store.FindByIdentity(ctx, "big.pdf", 250, "fld-1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 1, b.abortCalls)
	assert.Empty(t, b.completedParts)
}

func TestMultipart_ResumeUploadsOnlyMissingParts(t *testing.T) {
	b := newFakeBackend(t)
	store := testStore(t)
	ctx := context.Background()

	// A prior process uploaded 3 of 5 parts before dying.
	sess := sessions.New("big.pdf", 250, "hash-1", "application/pdf", "fld-1",
		"doc-mp", "up-1", "key-1", 50, 5)
	require.NoError(t, sess.MarkUploaded(1, "tag-mp/1"))
	require.NoError(t, sess.MarkUploaded(2, "tag-mp/2"))
	require.NoError(t, sess.MarkUploaded(3, "tag-mp/3"))
	require.NoError(t, store.Save(ctx, sess))

	// The surviving state reports ~0.6 progress.
	loaded, err := store.FindByIdentity(ctx, "big.pdf", 250, "fld-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, 0.6, loaded.Progress, 0.001)

	m := testMultipart(b, store)
	docID, err := m.Upload(ctx, entryFor(memHandle("big.pdf", 250)), "fld-1", "hash-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "doc-mp", docID)

	// No re-init; fresh URLs requested for exactly the 2 missing parts.
	assert.Zero(t, b.initCalls)
	require.Len(t, b.signPartsCalls, 1)
	assert.Equal(t, []int{4, 5}, b.signPartsCalls[0])

	assert.Zero(t, b.puts[partPath(1)])
	assert.Zero(t, b.puts[partPath(2)])
	assert.Zero(t, b.puts[partPath(3)])
	assert.Equal(t, 1, b.puts[partPath(4)])
	assert.Equal(t, 1, b.puts[partPath(5)])

	// Completion still covers all 5 parts, sorted.
	require.Len(t, b.completedParts, 1)
	require.Len(t, b.completedParts[0], 5)
	for i, p := range b.completedParts[0] {
		assert.Equal(t, i+1, p.PartNumber)
		assert.NotEmpty(t, p.Tag)
	}
}

func TestMultipart_ResumeWithAllPartsGoesStraightToCompletion(t *testing.T) {
	b := newFakeBackend(t)
	store := testStore(t)
	ctx := context.Background()

	sess := sessions.New("big.pdf", 100, "h", "application/pdf", "fld-1",
		"doc-mp", "up-1", "key-1", 50, 2)
	require.NoError(t, sess.MarkUploaded(1, "t1"))
	require.NoError(t, sess.MarkUploaded(2, "t2"))
	require.NoError(t, store.Save(ctx, sess))

	m := testMultipart(b, store)
	_, err := m.Upload(ctx, entryFor(memHandle("big.pdf", 100)), "fld-1", "h", nil)
	require.NoError(t, err)

	assert.Empty(t, b.signPartsCalls)
	assert.Empty(t, b.puts)
	require.Len(t, b.completedParts, 1)
}

func partPath(n int) string {
	return fmt.Sprintf("mp/%d", n)
}
