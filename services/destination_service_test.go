package services

import (
	"context"
	"errors"
	"testing"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelPlannerAPI/internal/datasvc"
)

type fakeLister struct {
	objects map[string][]*gcs.ObjectAttrs
	err     error
	calls   int
}

func (f *fakeLister) List(ctx context.Context, prefix string) ([]*gcs.ObjectAttrs, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.objects[prefix], nil
}

func seedDestinations(t *testing.T, mem *datasvc.MemoryService) {
	t.Helper()
	ctx := context.Background()
	seed := map[string]map[string]any{
		"location 1": {"name": "Hanoi", "place": "Vietnam", "price": "100", "description": "capital", "view": 10},
		"location 2": {"name": "Ha Long", "place": "Vietnam", "price": "200", "description": "bay", "view": 30},
		"location 3": {"name": "Hue", "place": "Vietnam", "price": "80", "description": "citadel", "view": 20},
		"location 4": {"name": "Bangkok", "place": "Thailand", "price": "150", "description": "temples", "view": 5},
	}
	for key, rec := range seed {
		require.NoError(t, mem.Write(ctx, "destination/"+key, rec))
	}
	require.NoError(t, mem.Write(ctx, "destination/broken", "nope"))
}

func TestDestinationListAndSearch(t *testing.T) {
	ctx := context.Background()
	mem := datasvc.NewMemoryService()
	seedDestinations(t, mem)
	svc := NewDestinationService(mem, nil)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Bangkok", all[0].Name)

	found, err := svc.Search(ctx, "Ha")
	require.NoError(t, err)
	var names []string
	for _, d := range found {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Ha Long", "Hanoi"}, names)

	found, err = svc.Search(ctx, "ha")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDestinationPopular(t *testing.T) {
	ctx := context.Background()
	mem := datasvc.NewMemoryService()
	seedDestinations(t, mem)
	svc := NewDestinationService(mem, nil)

	top, err := svc.Popular(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Ha Long", top[0].Name)
	assert.Equal(t, "Hue", top[1].Name)

	top, err = svc.Popular(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, top, 4)
	assert.False(t, svc.LastRefresh().IsZero())
}

func TestDestinationRecordView(t *testing.T) {
	ctx := context.Background()
	mem := datasvc.NewMemoryService()
	seedDestinations(t, mem)
	svc := NewDestinationService(mem, nil)

	_, err := svc.Popular(ctx, 1)
	require.NoError(t, err)

	for i := 0; i < 26; i++ {
		n, err := svc.RecordView(ctx, "Bangkok")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	n, err := svc.RecordView(ctx, "Atlantis")
	require.NoError(t, err)
	assert.Zero(t, n)

	top, err := svc.Popular(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Bangkok", top[0].Name)
	assert.Equal(t, 31, top[0].View)

	d, err := svc.RecordViewByKey(ctx, "location 1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 11, d.View)

	d, err = svc.RecordViewByKey(ctx, "location 99")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDestinationAdd(t *testing.T) {
	ctx := context.Background()
	mem := datasvc.NewMemoryService()
	seedDestinations(t, mem)
	svc := NewDestinationService(mem, nil)

	_, err := svc.Add(ctx, "u1", NewDestinationRequest{Name: "Sapa", Place: "Vietnam"})
	assert.ErrorIs(t, err, ErrIncompleteDestination)

	// Five children exist (one malformed), so the next key is location 6.
	d, err := svc.Add(ctx, "u1", NewDestinationRequest{
		Name: "Sapa", Place: "Vietnam", Price: "60", Description: "rice terraces",
	})
	require.NoError(t, err)
	assert.Equal(t, "location 6", d.Key)
	assert.Equal(t, "u1", d.AddedBy)

	require.NoError(t, mem.Delete(ctx, "destination/broken"))
	d, err = svc.Add(ctx, "u2", NewDestinationRequest{
		Name: "Da Lat", Place: "Vietnam", Price: "70", Description: "flowers",
	})
	require.NoError(t, err)
	assert.Equal(t, "location 7", d.Key)

	found, err := svc.Search(ctx, "Sapa")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Zero(t, found[0].View)
}

func TestImageServiceFirstImageURL(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{objects: map[string][]*gcs.ObjectAttrs{
		"location/Hanoi/": {
			{Name: "location/Hanoi/", Size: 0},
			{Name: "location/Hanoi/b.jpg", MediaLink: "https://img/b"},
			{Name: "location/Hanoi/a.jpg", MediaLink: "https://img/a"},
		},
	}}
	images := NewImageService(lister)

	url, err := images.FirstImageURL(ctx, "Hanoi")
	require.NoError(t, err)
	assert.Equal(t, "https://img/a", url)

	url, err = images.FirstImageURL(ctx, "Hue")
	require.NoError(t, err)
	assert.Empty(t, url)

	lister.err = errors.New("storage down")
	_, err = images.FirstImageURL(ctx, "Hanoi")
	assert.Error(t, err)
}

func TestDestinationSearchAttachesImages(t *testing.T) {
	ctx := context.Background()
	mem := datasvc.NewMemoryService()
	seedDestinations(t, mem)
	lister := &fakeLister{objects: map[string][]*gcs.ObjectAttrs{
		"location/Hue/": {{Name: "location/Hue/1.jpg", MediaLink: "https://img/hue"}},
	}}
	svc := NewDestinationService(mem, NewImageService(lister))

	found, err := svc.Search(ctx, "Hu")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "https://img/hue", found[0].ImageURL)
}
