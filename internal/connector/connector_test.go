package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/datalake/internal/config"
)

func pagedList(total, pageSize int) (ListFunc[int], *[]int) {
	var pages []int
	return func(ctx context.Context, opts ListOptions) (*Page[int], error) {
		pages = append(pages, opts.Page)
		start := (opts.Page - 1) * pageSize
		var results []int
		for i := start; i < start+pageSize && i < total; i++ {
			results = append(results, i)
		}
		return &Page[int]{Results: results, Count: total, HasMore: start+pageSize < total}, nil
	}, &pages
}

func TestListAllWalksEveryPage(t *testing.T) {
	list, pages := pagedList(25, 10)

	got, err := ListAll(context.Background(), list, ListOptions{PageSize: 10}, 50)
	require.NoError(t, err)

	assert.Len(t, got.Results, 25)
	assert.Equal(t, 25, got.Count)
	assert.Equal(t, 3, got.LastPage)
	assert.False(t, got.Truncated)
	assert.Equal(t, []int{1, 2, 3}, *pages)
}

func TestListAllStopsAtMaxPages(t *testing.T) {
	list, pages := pagedList(1000, 10)

	got, err := ListAll(context.Background(), list, ListOptions{PageSize: 10}, 4)
	require.NoError(t, err)

	assert.Len(t, got.Results, 40)
	assert.Equal(t, 4, got.LastPage)
	assert.True(t, got.Truncated)
	assert.Len(t, *pages, 4)
}

func TestListAllReturnsPageError(t *testing.T) {
	boom := errors.New("boom")
	list := func(ctx context.Context, opts ListOptions) (*Page[int], error) {
		if opts.Page == 2 {
			return nil, boom
		}
		return &Page[int]{Results: []int{1}, HasMore: true}, nil
	}

	got, err := ListAll(context.Background(), list, ListOptions{}, 10)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "page 2")
	assert.Len(t, got.Results, 1)
}

func TestLimiterSpacesRequests(t *testing.T) {
	lim := NewLimiter(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, lim.Wait(ctx))
	}

	// first call is free, the next three wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 110*time.Millisecond)
	assert.Equal(t, int64(4), lim.Calls())
}

func TestLimiterHonoursContext(t *testing.T) {
	lim := NewLimiter(time.Hour)
	require.NoError(t, lim.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, lim.Wait(ctx))
	assert.Equal(t, int64(1), lim.Calls())
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	called := false
	require.NoError(t, reg.Register("fake", func(conn config.ConnectionConfig, deps Deps) (Connector, error) {
		called = true
		return nil, nil
	}))

	assert.Error(t, reg.Register("fake", nil))
	assert.True(t, reg.Has("fake"))
	assert.Equal(t, []string{"fake"}, reg.Types())

	_, err := reg.Build(config.ConnectionConfig{Type: "fake"}, Deps{})
	require.NoError(t, err)
	assert.True(t, called)

	_, err = reg.Build(config.ConnectionConfig{Type: "missing"}, Deps{})
	assert.Error(t, err)
}
