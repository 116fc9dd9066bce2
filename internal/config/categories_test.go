package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCategories(t *testing.T) {
	reg := DefaultCategories()

	assert.Equal(t, []string{"amenity", "infrastructure", "landuse", "place"}, reg.Names())

	infra, ok := reg.Get("infrastructure")
	require.True(t, ok)
	assert.True(t, infra.HasSubtypes)
	assert.Equal(t, []string{"point", "line", "polygon"}, infra.GeometryKinds())

	place, ok := reg.Get("place")
	require.True(t, ok)
	assert.False(t, place.HasSubtypes)

	_, ok = reg.Get("buildings")
	assert.False(t, ok)
}

func TestParseCategories(t *testing.T) {
	data := []byte(`
categories:
  - name: infrastructure
    has_subtypes: true
  - name: landuse
    kinds: [point, polygon]
`)
	reg, err := ParseCategories(data)
	require.NoError(t, err)

	assert.Len(t, reg, 2)
	landuse, ok := reg.Get("landuse")
	require.True(t, ok)
	assert.False(t, landuse.HasSubtypes)
	assert.Equal(t, []string{"point", "polygon"}, landuse.GeometryKinds())
}

func TestParseCategories_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", "categories: []"},
		{"bad name", "categories:\n  - name: \"osm; drop table\"\n"},
		{"duplicate", "categories:\n  - name: place\n  - name: place\n"},
		{"bad kind", "categories:\n  - name: place\n    kinds: [\"Point\"]\n"},
		{"not yaml", "categories: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCategories([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db", Port: 5432, User: "reader", Password: "secret", DBName: "pgosm_flex", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=reader password=secret dbname=pgosm_flex sslmode=disable", cfg.DSN())

	cfg.ReadOnly = true
	assert.Contains(t, cfg.DSN(), "default_transaction_read_only=on")

	assert.Equal(t, "postgres://reader:secret@db:5432/pgosm_flex?sslmode=disable", cfg.MigrationURL())
}

func TestParseList(t *testing.T) {
	assert.Nil(t, ParseList(""))
	assert.Equal(t, []string{"126", "585"}, ParseList(" 126, ,585 "))
}
