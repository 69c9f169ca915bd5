package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTestsRequestCarriesProjectRoot(t *testing.T) {
	client := &GRPCClient{opts: GRPCOptions{ProjectRoot: "/srv/project"}}
	assert.Equal(t, map[string]any{"root": "/srv/project"}, client.listTestsRequest())
}

func TestReloadRequestCarriesRootAndExclusions(t *testing.T) {
	client := &GRPCClient{opts: GRPCOptions{
		ProjectRoot:   "/srv/project",
		ReloadExclude: []string{"goose_support", "conftest"},
	}}
	req := client.reloadRequest()
	assert.Equal(t, "/srv/project", req["root"])
	assert.Equal(t, []string{"goose_support", "conftest"}, req["exclude"])

	// No exclusions configured: the key stays off the wire.
	client = &GRPCClient{opts: GRPCOptions{ProjectRoot: "."}}
	_, present := client.reloadRequest()["exclude"]
	assert.False(t, present)
}

func TestCallCtxAppliesConfiguredTimeout(t *testing.T) {
	client := &GRPCClient{opts: GRPCOptions{CallTimeout: 5 * time.Second}}
	ctx, cancel := client.callCtx(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
}

func TestCallCtxZeroTimeoutLeavesContextUnbounded(t *testing.T) {
	client := &GRPCClient{}
	ctx, cancel := client.callCtx(context.Background())
	defer cancel()

	_, ok := ctx.Deadline()
	assert.False(t, ok)
}
