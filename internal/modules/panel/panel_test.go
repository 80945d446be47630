package panel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestNew_SortsByAssetThenDate(t *testing.T) {
	p, err := New([]Record{
		{AssetID: "B", Date: day(2), Price: 4},
		{AssetID: "A", Date: day(3), Price: 3},
		{AssetID: "B", Date: day(1), Price: 2},
		{AssetID: "A", Date: day(1), Price: 1},
	})
	require.NoError(t, err)

	var got []float64
	for _, r := range p.Records() {
		got = append(got, r.Price)
	}
	assert.Equal(t, []float64{1, 3, 2, 4}, got)
	assert.Equal(t, []string{"A", "B"}, p.Assets())
	assert.Equal(t, []time.Time{day(1), day(2), day(3)}, p.Dates())
}

func TestPanel_Series(t *testing.T) {
	p, err := New([]Record{
		{AssetID: "A", Date: day(2), Price: 2},
		{AssetID: "A", Date: day(1), Price: 1},
		{AssetID: "B", Date: day(1), Price: 9},
	})
	require.NoError(t, err)

	series := p.Series("A")
	require.Len(t, series, 2)
	assert.Equal(t, day(1), series[0].Date)
	assert.Equal(t, day(2), series[1].Date)
	assert.Nil(t, p.Series("missing"))
}

func TestPanel_AccessorsReturnCopies(t *testing.T) {
	p, err := New([]Record{{AssetID: "A", Date: day(1), Price: 1}})
	require.NoError(t, err)

	p.Records()[0].Price = 100
	p.Series("A")[0].Price = 100
	p.Assets()[0] = "Z"

	assert.Equal(t, 1.0, p.Records()[0].Price)
	assert.Equal(t, []string{"A"}, p.Assets())
}
