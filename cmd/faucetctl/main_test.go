package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zama-ai/token-faucet/pkg/client"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]string{"asset": "TK1"}))
	assert.Equal(t, "{\n  \"asset\": \"TK1\"\n}\n", buf.String())

	err := writeJSON(failingWriter{}, map[string]string{"asset": "TK1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestRunRejectsBadArguments(t *testing.T) {
	c := client.NewClient("http://localhost:0", nil, time.Second)
	ctx := context.Background()

	_, err := run(ctx, c, "deposit", []string{"TK1"})
	assert.EqualError(t, err, "deposit expects 2 arguments, got 1")

	_, err = run(ctx, c, "revoke", []string{"nope", "TK1"})
	assert.EqualError(t, err, `invalid account address "nope"`)

	_, err = run(ctx, c, "mint", nil)
	assert.EqualError(t, err, `unknown command "mint"`)
}
