package uploader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/avetisov/docpilot/internal/common"
)

// Hasher computes content hashes on their own goroutine so orchestration is
// never blocked, with a timeout independent of network deadlines.
type Hasher struct {
	Timeout time.Duration
}

type hashResult struct {
	sum string
	err error
}

// ContentHash returns the lowercase hex BLAKE2b-256 digest of the handle's
// content. On timeout the error wraps common.ErrHashTimeout and the file
// fails before any network call is made for it.
func (h Hasher) ContentHash(ctx context.Context, fh FileHandle) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	ch := make(chan hashResult, 1)
	go func() {
		digest, err := blake2b.New256(nil)
		if err != nil {
			ch <- hashResult{err: err}
			return
		}
		if _, err := io.Copy(digest, fh.reader()); err != nil {
			ch <- hashResult{err: fmt.Errorf("hashing %q: %w", fh.Name, err)}
			return
		}
		ch <- hashResult{sum: hex.EncodeToString(digest.Sum(nil))}
	}()

	select {
	case res := <-ch:
		return res.sum, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %q", common.ErrHashTimeout, fh.Name)
		}
		return "", ctx.Err()
	}
}
