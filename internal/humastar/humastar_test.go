package humastar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationLinks(t *testing.T) {
	p := NewPage([]int{3, 4}, 7, 2, 2)
	assert.Equal(t, []string{
		`</f?offset=0&limit=2>; rel="first"`,
		`</f?offset=0&limit=2>; rel="prev"`,
		`</f?offset=4&limit=2>; rel="next"`,
		`</f?offset=6&limit=2>; rel="last"`,
	}, p.PaginationLinks("/f"))

	empty := NewPage[int](nil, 0, 0, 10)
	assert.NotNil(t, empty.Data)
	assert.Equal(t, []string{
		`</f?offset=0&limit=10>; rel="first"`,
		`</f?offset=0&limit=10>; rel="last"`,
	}, empty.PaginationLinks("/f"))

	assert.Nil(t, NewPage([]int{}, 5, 0, 0).PaginationLinks("/f"))
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor("points", []ActionDef{
		{Rel: "refresh", Pattern: "/api/v1/layers/%s/refresh", Method: "POST", Title: "Fetch again"},
	})
	require.Len(t, actions, 1)
	assert.Equal(t, "/api/v1/layers/points/refresh", actions[0].Href)
	assert.Equal(t,
		`</api/v1/layers/points/refresh>; rel="refresh"; method="POST"; title="Fetch again"`,
		actions[0].LinkHeader())
}

func TestSignals(t *testing.T) {
	in := SignalsInput{RawBody: []byte(`{"lon":-4.5,"lat":41,"kind":"points"}`)}
	s, err := in.MustParse()
	require.NoError(t, err)

	lon, ok := s.Float("lon")
	assert.True(t, ok)
	assert.Equal(t, -4.5, lon)
	lat, ok := s.Float("lat")
	assert.True(t, ok)
	assert.Equal(t, 41.0, lat)
	_, ok = s.Float("kind")
	assert.False(t, ok)
	_, ok = s.Float("zoom")
	assert.False(t, ok)

	_, err = (&SignalsInput{RawBody: []byte("{")}).MustParse()
	assert.Error(t, err)
}
