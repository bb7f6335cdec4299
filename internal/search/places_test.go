package search

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelmate/wheelmate/internal/model"
	"github.com/wheelmate/wheelmate/internal/store"
)

func seededEngine(t *testing.T) (*Engine, *store.SQLiteStore, *testClock) {
	t.Helper()
	clock := newClock()
	st := newTestStore(t, clock)
	require.NoError(t, st.Upsert(context.Background(), nearby("Cafe", 2, paris, model.RatingPartially)))
	e := New(defaultSearchConfig(), st, nil, parisGeocoder(), WithClock(clock.Now))
	return e, st, clock
}

func TestVerify(t *testing.T) {
	e, st, clock := seededEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Verify(ctx, " Cafe 1 ", "alice", true))
	clock.t = clock.t.Add(time.Hour)
	require.NoError(t, e.Verify(ctx, "Cafe 1", "bob", false))

	vs, err := st.Verifications(ctx, "Cafe 1")
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "alice", vs[0].User)
	assert.True(t, vs[0].Verified)
	assert.False(t, vs[1].Verified)
	assert.True(t, vs[1].Timestamp.After(vs[0].Timestamp))

	assert.Error(t, e.Verify(ctx, "", "alice", true))
	assert.Error(t, e.Verify(ctx, "Cafe 1", "  ", true))
}

func TestRate(t *testing.T) {
	e, st, _ := seededEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Rate(ctx, "Cafe 2", model.RatingFully))
	p, err := st.Get(ctx, "Cafe 2")
	require.NoError(t, err)
	assert.Equal(t, model.RatingFully, p.Rating)

	err = e.Rate(ctx, "Nowhere", model.RatingNot)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	assert.Error(t, e.Rate(ctx, "Cafe 2", model.Rating(7)))
	assert.Error(t, e.Rate(ctx, " ", model.RatingNot))
}

func TestSetPhoto(t *testing.T) {
	e, st, _ := seededEngine(t)
	ctx := context.Background()

	img := []byte{0x89, 'P', 'N', 'G'}
	require.NoError(t, e.SetPhoto(ctx, "Cafe 1", img))
	p, err := st.Get(ctx, "Cafe 1")
	require.NoError(t, err)
	assert.Equal(t, img, p.Photo)

	assert.Error(t, e.SetPhoto(ctx, "Cafe 1", nil))
	assert.Error(t, e.SetPhoto(ctx, "Cafe 1", bytes.Repeat([]byte{1}, MaxPhotoBytes+1)))
	assert.True(t, errors.Is(e.SetPhoto(ctx, "Nowhere", img), store.ErrNotFound))
}

func TestPlace(t *testing.T) {
	e, _, _ := seededEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Verify(ctx, "Cafe 1", "alice", true))

	p, vs, err := e.Place(ctx, "Cafe 1")
	require.NoError(t, err)
	assert.Equal(t, "Cafe 1", p.Name)
	assert.Len(t, vs, 1)

	_, _, err = e.Place(ctx, "Nowhere")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
