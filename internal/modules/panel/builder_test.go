package panel

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/riskaversion/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kaggleRow(line int, name, date, open, volume string) RawRecord {
	return RawRecord{
		Source: name + "_data.csv",
		Line:   line,
		Fields: map[string]string{
			"date":   date,
			"open":   open,
			"high":   "99",
			"low":    "1",
			"close":  "50",
			"volume": volume,
			"Name":   name,
		},
	}
}

func TestBuilder_Build_NormalizesKaggleRows(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	p, err := b.Build([]RawRecord{
		kaggleRow(3, "MSFT", "2013-02-11", "27.5", "300"),
		kaggleRow(2, "MSFT", "2013-02-08", "27.35", "200"),
		kaggleRow(2, "AAL", "2013-02-08", "15.07", "8407500"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAL", "MSFT"}, p.Assets())

	records := p.Records()
	require.Len(t, records, 3)
	assert.Equal(t, Record{
		AssetID: "AAL",
		Date:    time.Date(2013, 2, 8, 0, 0, 0, 0, time.UTC),
		Price:   15.07,
		Volume:  8407500,
	}, records[0])
	assert.Equal(t, "MSFT", records[1].AssetID)
	assert.Equal(t, 27.35, records[1].Price, "open is used as price")
	assert.Equal(t, time.Date(2013, 2, 11, 0, 0, 0, 0, time.UTC), records[2].Date)
}

func TestBuilder_Build_FieldSynonyms(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	p, err := b.Build([]RawRecord{
		{Line: 1, Fields: map[string]string{" Ticker ": "X", "DATE": "2020/01/02", "Price": "1.5", "Volume": "10"}},
		{Line: 2, Fields: map[string]string{"symbol": "Y", "date": "2020-01-02T00:00:00Z", "price": "2", "volume": "0"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"X", "Y"}, p.Assets())
	assert.Equal(t, 1.5, p.Series("X")[0].Price)
	assert.Equal(t, 0.0, p.Series("Y")[0].Volume)
	assert.Equal(t, p.Series("X")[0].Date, p.Series("Y")[0].Date)
}

func TestBuilder_Build_MalformedRecords(t *testing.T) {
	testCases := []struct {
		name   string
		fields map[string]string
	}{
		{"missing name", map[string]string{"date": "2013-02-08", "open": "1", "volume": "1"}},
		{"missing date", map[string]string{"Name": "A", "open": "1", "volume": "1"}},
		{"missing price", map[string]string{"Name": "A", "date": "2013-02-08", "close": "1", "volume": "1"}},
		{"empty price", map[string]string{"Name": "A", "date": "2013-02-08", "open": "", "volume": "1"}},
		{"missing volume", map[string]string{"Name": "A", "date": "2013-02-08", "open": "1"}},
		{"bad date", map[string]string{"Name": "A", "date": "08.02.2013", "open": "1", "volume": "1"}},
		{"bad price", map[string]string{"Name": "A", "date": "2013-02-08", "open": "abc", "volume": "1"}},
		{"nan price", map[string]string{"Name": "A", "date": "2013-02-08", "open": "NaN", "volume": "1"}},
		{"negative volume", map[string]string{"Name": "A", "date": "2013-02-08", "open": "1", "volume": "-5"}},
	}

	b := NewBuilder(zerolog.Nop())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Build([]RawRecord{{Source: "a.csv", Line: 7, Fields: tc.fields}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedRecord), "got %v", err)
			assert.Contains(t, err.Error(), "a.csv:7")
		})
	}
}

func TestBuilder_Build_RejectsDuplicates(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	_, err := b.Build([]RawRecord{
		kaggleRow(2, "A", "2013-02-08", "1", "1"),
		kaggleRow(3, "A", "2013-02-08", "2", "1"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)
}

func TestBuilder_Build_Empty(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	_, err := b.Build(nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}
