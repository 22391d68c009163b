package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsSuccess(t *testing.T) {
	assert.True(t, StatusOK.IsSuccess())
	assert.True(t, StatusReadOnly.IsSuccess())
	assert.True(t, StatusNoChanges.IsSuccess())
	assert.False(t, StatusPartialSuccess.IsSuccess())
	assert.False(t, StatusFailed.IsSuccess())
}

func TestStatusErr(t *testing.T) {
	assert.NoError(t, StatusOK.Err())

	err := fmt.Errorf("set: %w", StatusReadOnly.Err())
	assert.ErrorIs(t, err, StatusReadOnly)
	assert.Equal(t, "set: flake: READ_ONLY", err.Error())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOK},
		{"status", StatusNotFound, StatusNotFound},
		{"wrapped", fmt.Errorf("x: %w", StatusUnauthorized), StatusUnauthorized},
		{"deadline", context.DeadlineExceeded, StatusTimeout},
		{"eof", io.EOF, StatusNotConnected},
		{"other", errors.New("boom"), StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "DESTINATION_UNREACHABLE", StatusDestinationUnreachable.String())
	assert.Equal(t, "UNKNOWN(-50)", Status(-50).String())
	assert.True(t, StatusBind.IsLocal())
	assert.Equal(t, int8(-1), StatusListen.WireByte())
	assert.Equal(t, int8(-105), StatusDestinationUnreachable.WireByte())
}
