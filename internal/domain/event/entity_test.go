package event

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingrisk/pkg/errors"
)

func TestSetTimestamp_Buckets(t *testing.T) {
	// Thursday 2025-03-06 14:35:10 UTC
	var e ProtocolEvent
	e.SetTimestamp(time.Date(2025, 3, 6, 14, 35, 10, 0, time.UTC).Unix())

	assert.Equal(t, time.Date(2025, 3, 6, 14, 0, 0, 0, time.UTC), e.TimestampHour)
	assert.Equal(t, time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC), e.TimestampDay)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), e.TimestampWeek)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), e.TimestampMonth)
}

func TestTruncateWeek(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday stays", time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
		{"sunday goes back six days", time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC), time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
		{"crosses month", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateWeek(tt.in))
		})
	}
}

func TestParseTypes(t *testing.T) {
	types, err := ParseTypes("supply, Liquidation,,")
	require.NoError(t, err)
	assert.Equal(t, []Type{TypeSupply, TypeLiquidation}, types)

	types, err = ParseTypes("")
	require.NoError(t, err)
	assert.Empty(t, types)

	_, err = ParseTypes("supply,mint")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestTxHashFromID(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)

	assert.Equal(t, hash, TxHashFromID(hash+"-12"))
	assert.Equal(t, hash, TxHashFromID(hash+":3"))
	assert.Equal(t, hash, TxHashFromID(hash+"0007"))
	assert.Empty(t, TxHashFromID("12345-1"))
	assert.Empty(t, TxHashFromID(""))
}

func TestMetadata_ValueScan(t *testing.T) {
	v, err := Metadata(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = Metadata{"caller": "0xabc"}.Value()
	require.NoError(t, err)

	var m Metadata
	require.NoError(t, m.Scan([]byte(v.(string))))
	assert.Equal(t, "0xabc", m["caller"])

	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)
	assert.Error(t, m.Scan(42))
}
