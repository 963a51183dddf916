package reference

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()

	node, err := NewNode(config.Config{SnowflakeNode: 1})
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC))
	return NewGenerator(Params{Node: node, Clock: fake})
}

func TestGeneratorPrefixesAndDateSegment(t *testing.T) {
	gen := newTestGenerator(t)

	cases := []struct {
		prefix string
		number string
	}{
		{"RNT", gen.Rental()},
		{"MNT", gen.Maintenance()},
		{"INV", gen.Invoice()},
		{"PAY", gen.Payment()},
		{"JE", gen.Journal()},
	}

	for _, tc := range cases {
		assert.True(t, strings.HasPrefix(tc.number, tc.prefix+"-20260315-"), "number %s", tc.number)

		suffix := tc.number[len(tc.prefix)+len("-20260315-"):]
		assert.NotEmpty(t, suffix)
		assert.Equal(t, strings.ToUpper(suffix), suffix)
	}
}

func TestGeneratorNumbersAreUnique(t *testing.T) {
	gen := newTestGenerator(t)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		number := gen.Invoice()
		_, dup := seen[number]
		require.False(t, dup, "duplicate number %s", number)
		seen[number] = struct{}{}
	}
}

func TestFormat(t *testing.T) {
	at := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)

	got := Format("JE", at, snowflake.ParseInt64(123456789))
	assert.Equal(t, "JE-20260101-21I3V9", got)
}

func TestNewNodeRejectsOutOfRangeID(t *testing.T) {
	_, err := NewNode(config.Config{SnowflakeNode: 1 << 20})
	assert.Error(t, err)
}
