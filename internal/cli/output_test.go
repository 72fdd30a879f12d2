package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/domain"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("all good"))
	assert.Equal(t, "all good\n", buf.String())
}

func TestOutputFormatter_JSONOperationError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	opErr := domain.NewConflict("event %q sync state is %q", "e1", "synced")
	err := formatter.OperationError("failed to approve sync", opErr)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "conflict", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "sync state")
}

func TestOutputFormatter_TextOperationError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	opErr := domain.NewNotFound("event %q does not exist", "missing")
	err := formatter.OperationError("failed to request sync", opErr)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Error [not_found]:")
}

func TestExitError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("disk full")
	exitErr := WrapExitError(ExitCommandError, "failed to open database", underlying)

	assert.Equal(t, "failed to open database: disk full", exitErr.Error())
	assert.ErrorIs(t, exitErr, underlying)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "boom", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "boom", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", nil))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}
