package postgresosm

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"strings", `{"power":"plant","name":"Centralia"}`, map[string]string{"power": "plant", "name": "Centralia"}},
		{"mixed values", `{"voltage":230000,"oneway":true,"note":null}`, map[string]string{"voltage": "230000", "oneway": "true"}},
		{"invalid", `not json`, map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseTags([]byte(tt.raw)))
		})
	}
}

func TestDecodeGeometry(t *testing.T) {
	raw, err := wkb.Marshal(orb.LineString{{-121, 46.5}, {-120, 46.6}})
	require.NoError(t, err)

	g, err := decodeGeometry(raw)
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{-121, 46.5}, {-120, 46.6}}, g)

	g, err = decodeGeometry(nil)
	assert.NoError(t, err)
	assert.Nil(t, g)

	_, err = decodeGeometry([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestNullableString(t *testing.T) {
	blank := "  "
	name := "King County"
	assert.Nil(t, nullableString(nil))
	assert.Nil(t, nullableString(&blank))
	assert.Equal(t, &name, nullableString(&name))
}
