package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/monitor-client/pkg/dispatch"
	"github.com/monitor-client/pkg/module"
)

type reply struct {
	result any
	err    error
}

func newDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	reg := module.NewRegistry()
	require.NoError(t, reg.Register(&module.Descriptor{
		Name: "disk",
		Methods: map[string]module.Method{
			"usage": func(_ context.Context, req module.Request) (any, error) {
				return map[string]any{"path": req.Params["path"], "used": 42.0}, nil
			},
			"fail": func(context.Context, module.Request) (any, error) {
				return nil, errors.New("permission denied")
			},
			"panic": func(context.Context, module.Request) (any, error) {
				panic("bad state")
			},
		},
	}))
	return dispatch.New(reg, zaptest.NewLogger(t))
}

func dispatchAndWait(t *testing.T, d *dispatch.Dispatcher, cmd dispatch.Command) reply {
	t.Helper()
	got := make(chan reply, 1)
	require.True(t, d.Dispatch(context.Background(), cmd, func(result any, err error) {
		got <- reply{result, err}
	}))
	select {
	case r := <-got:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
		return reply{}
	}
}

func TestDispatchRelaysResult(t *testing.T) {
	d := newDispatcher(t)
	r := dispatchAndWait(t, d, dispatch.Command{
		ModuleName: "disk",
		Params:     map[string]any{"command": "usage", "path": "/"},
	})
	require.NoError(t, r.err)
	assert.Equal(t, map[string]any{"path": "/", "used": 42.0}, r.result)
}

func TestDispatchRelaysErrors(t *testing.T) {
	d := newDispatcher(t)
	r := dispatchAndWait(t, d, dispatch.Command{ModuleName: "disk", Params: map[string]any{"command": "fail"}})
	assert.EqualError(t, r.err, "permission denied")

	r = dispatchAndWait(t, d, dispatch.Command{ModuleName: "disk", Params: map[string]any{"command": "panic"}})
	assert.ErrorContains(t, r.err, "panicked")
}

func TestDispatchMissIsSilent(t *testing.T) {
	d := newDispatcher(t)
	called := false
	cb := func(any, error) { called = true }

	for _, cmd := range []dispatch.Command{
		{ModuleName: "disk", Params: map[string]any{"command": "resetThreshold", "value": 10}},
		{ModuleName: "gpu", Params: map[string]any{"command": "usage"}},
		{ModuleName: "disk", Params: map[string]any{"value": 10}},
		{ModuleName: "disk"},
	} {
		assert.False(t, d.Dispatch(context.Background(), cmd, cb))
	}
	d.Wait()
	assert.False(t, called)
}

func TestDispatchNilReply(t *testing.T) {
	d := newDispatcher(t)
	assert.True(t, d.Dispatch(context.Background(),
		dispatch.Command{ModuleName: "disk", Params: map[string]any{"command": "usage"}}, nil))
	d.Wait()
}
