package module_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitor-client/pkg/module"
)

func collectNothing(context.Context) (module.Result, error) {
	return module.Raw(nil), nil
}

func TestRegistryLookupAndCron(t *testing.T) {
	reg := module.NewRegistry()
	require.NoError(t, reg.Register(&module.Descriptor{Name: "cpu", HasCron: true, Collect: collectNothing}))
	require.NoError(t, reg.Register(&module.Descriptor{Name: "shell"}))

	d, ok := reg.Lookup("cpu")
	require.True(t, ok)
	assert.Equal(t, "cpu", d.Name)

	_, ok = reg.Lookup("disk")
	assert.False(t, ok)

	assert.Equal(t, []string{"cpu", "shell"}, reg.Names())
	require.Len(t, reg.WithCron(), 1)
	assert.Equal(t, "cpu", reg.WithCron()[0].Name)
	assert.Len(t, reg.All(), 2)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := module.NewRegistry()
	require.NoError(t, reg.Register(&module.Descriptor{Name: "cpu"}))
	err := reg.Register(&module.Descriptor{Name: "cpu"})
	assert.ErrorIs(t, err, module.ErrDuplicateModule)
}

func TestRegistryRejectsInvalidRouteMethod(t *testing.T) {
	reg := module.NewRegistry()
	err := reg.Register(&module.Descriptor{
		Name: "disk",
		Routes: []module.Route{{
			Method:  "PATCH",
			Pattern: "/disk",
			Handler: http.NotFoundHandler(),
		}},
	})
	require.ErrorIs(t, err, module.ErrInvalidRouteMethod)
	_, ok := reg.Lookup("disk")
	assert.False(t, ok)
}

func TestRegistryAcceptsMixedCaseRouteMethod(t *testing.T) {
	reg := module.NewRegistry()
	require.NoError(t, reg.Register(&module.Descriptor{
		Name:   "disk",
		Routes: []module.Route{{Method: "Get", Pattern: "/disk", Handler: http.NotFoundHandler()}},
	}))
	assert.Len(t, reg.Routes(), 1)
}

func TestValidateCronWithoutCollect(t *testing.T) {
	err := module.Validate(&module.Descriptor{Name: "cpu", HasCron: true})
	assert.ErrorIs(t, err, module.ErrInvalidDescriptor)
	assert.ErrorIs(t, module.Validate(nil), module.ErrInvalidDescriptor)
}

func TestRegistryRemove(t *testing.T) {
	reg := module.NewRegistry()
	require.NoError(t, reg.Register(&module.Descriptor{Name: "a"}))
	require.NoError(t, reg.Register(&module.Descriptor{Name: "b"}))
	reg.Remove("a")
	reg.Remove("missing")
	assert.Equal(t, []string{"b"}, reg.Names())
}

func TestDescriptorMethod(t *testing.T) {
	d := &module.Descriptor{
		Name: "disk",
		Methods: map[string]module.Method{
			"usage": func(context.Context, module.Request) (any, error) { return 1, nil },
		},
	}
	_, ok := d.Method("usage")
	assert.True(t, ok)
	_, ok = d.Method("resetThreshold")
	assert.False(t, ok)
	_, ok = d.Method("")
	assert.False(t, ok)
}

func TestResultVariants(t *testing.T) {
	raw := module.Raw(50)
	_, pre := raw.ClientID()
	assert.False(t, pre)
	assert.Equal(t, 50, raw.Data())

	shaped := module.PreShaped("client-9", map[string]any{"load": 1})
	id, pre := shaped.ClientID()
	assert.True(t, pre)
	assert.Equal(t, "client-9", id)
}
