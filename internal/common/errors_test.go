package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryable(t *testing.T) {
	var netErr net.Error = timeoutErr{}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"status 500", &StatusError{Status: 500}, true},
		{"status 503", &StatusError{Status: 503}, true},
		{"status 429", &StatusError{Status: 429}, true},
		{"status 408", &StatusError{Status: 408}, true},
		{"status 400", &StatusError{Status: 400}, false},
		{"status 403", &StatusError{Status: 403}, false},
		{"status 404", &StatusError{Status: 404}, false},
		{"wrapped status", fmt.Errorf("put: %w", &StatusError{Status: 502}), true},
		{"net error", netErr, true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := &StatusError{Status: 500, Body: "oops"}

	te := &TransferError{FileName: "a.pdf", Err: cause}
	assert.ErrorAs(t, fmt.Errorf("call: %w", te), new(*TransferError))
	assert.ErrorIs(t, te, cause)

	pe := &PartTransferError{FileName: "big.bin", SessionID: "s1", PartNumber: 3, Err: cause}
	assert.Contains(t, pe.Error(), "part 3")
	assert.ErrorIs(t, pe, cause)

	fin := &PartTransferError{FileName: "big.bin", SessionID: "s1", Err: cause}
	assert.Contains(t, fin.Error(), "finalizing")
	assert.NotContains(t, fin.Error(), "part 0")

	ne := &NotificationError{DocumentIDs: []string{"d1", "d2"}, Err: cause}
	assert.Contains(t, ne.Error(), "2 uploads")
	assert.ErrorIs(t, ne, cause)
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "unexpected status 502", (&StatusError{Status: 502}).Error())
	assert.Equal(t, "unexpected status 502: bad gateway", (&StatusError{Status: 502, Body: "bad gateway"}).Error())
}
