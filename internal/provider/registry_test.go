package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelmate/wheelmate/internal/model"
)

type namedProvider string

func (n namedProvider) Name() string { return string(n) }

func (n namedProvider) Fetch(context.Context, Query) ([]model.Place, error) { return nil, nil }

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(namedProvider("google")))
	require.NoError(t, r.Register(namedProvider("osm")))
	require.NoError(t, r.Register(namedProvider("wheelmap")))

	assert.Equal(t, []string{"google", "osm", "wheelmap"}, r.Names())
	assert.Equal(t, 3, r.Len())

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "osm", all[1].Name())
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(namedProvider("osm")))
	err := r.Register(namedProvider("osm"))
	assert.ErrorContains(t, err, "already registered")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(namedProvider("osm")))

	p, err := r.Get("osm")
	require.NoError(t, err)
	assert.Equal(t, "osm", p.Name())

	_, err = r.Get("bing")
	assert.ErrorContains(t, err, "unknown provider")
}

func TestQuery_RadiusMeters(t *testing.T) {
	assert.Equal(t, 5000, Query{RadiusKM: 5}.RadiusMeters())
	assert.Equal(t, 1235, Query{RadiusKM: 1.2345}.RadiusMeters())
}
