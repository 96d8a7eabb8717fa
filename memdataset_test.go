package viewshed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDatasetMapTransformsEveryElement(t *testing.T) {
	ds := NewMemDataset([]int{1, 2, 3})
	out, err := ds.Map(context.Background(), func(v int) (int, error) { return v * 2, nil })
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2, 4, 6}, out.Collect())
}

func TestMemDatasetMapPropagatesError(t *testing.T) {
	ds := NewMemDataset([]int{1, 2, 3})
	boom := errors.New("boom")
	_, err := ds.Map(context.Background(), func(v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubstrateFailure)
}

func TestMemDatasetFlatMapFlattensMessages(t *testing.T) {
	ds := NewMemDataset([]int{1, 2})
	msgs, err := ds.FlatMap(context.Background(), func(v int) ([]Message, error) {
		return []Message{{CausalObserverIndex: v}, {CausalObserverIndex: v * 10}}, nil
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestMemDatasetFirstAndCount(t *testing.T) {
	ds := NewMemDataset([]int{7, 8, 9})
	v, ok := ds.First()
	assert.True(t, ok)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, ds.Count())

	empty := NewMemDataset([]int{})
	_, ok = empty.First()
	assert.False(t, ok)
}

func TestMemBroadcastValue(t *testing.T) {
	b := NewMemBroadcast(map[int]float64{1: 2.5})
	assert.Equal(t, 2.5, b.Value()[1])
}
