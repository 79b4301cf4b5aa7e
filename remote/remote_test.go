package remote

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The accessors must tolerate every dynamic type the drivers hand back:
// pgx surfaces native Go types, other sources strings and byte slices.

func TestRowStrNormalizesDriverTypes(t *testing.T) {
	when := time.Date(2026, 8, 24, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"missing column", nil, ""},
		{"string", "Globex", "Globex"},
		{"byte slice", []byte("Globex"), "Globex"},
		{"timestamp renders as UTC RFC3339", when, "2026-08-24T07:30:00Z"},
		{"other types fall back to Sprint", int32(42), "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := Row{"col": tt.value}
			assert.Equal(t, tt.want, row.str("col"))
		})
	}
}

func TestRowInt64NormalizesDriverTypes(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"missing column", nil, 0},
		{"int64", int64(7), 7},
		{"int32", int32(7), 7},
		{"int", 7, 7},
		{"float64", float64(7), 7},
		{"numeric string", "7", 7},
		{"garbage string", "seven", 0},
		{"unknown type", []byte("7"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := Row{"col": tt.value}
			assert.Equal(t, tt.want, row.int64("col"))
		})
	}
}

func TestRowInt64PtrKeepsNullDistinctFromZero(t *testing.T) {
	// GIVEN a null column and a zero column
	row := Row{"absent": nil, "zero": int64(0)}

	// THEN null decodes to nil, zero to a pointer at zero
	assert.Nil(t, row.int64Ptr("absent"))
	p := row.int64Ptr("zero")
	require.NotNil(t, p)
	assert.Equal(t, int64(0), *p)
}

func TestRowBooleanNormalizesDriverTypes(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"missing column", nil, false},
		{"native bool", true, true},
		{"int64 nonzero", int64(1), true},
		{"int zero", 0, false},
		{"string t", "t", true},
		{"string 1", "1", true},
		{"warehouse Y flag", "Y", true},
		{"string true", "true", true},
		{"string no", "no", false},
		{"unknown type", 1.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := Row{"col": tt.value}
			assert.Equal(t, tt.want, row.boolean("col"))
		})
	}
}

func TestRowTimePtrNormalizesDriverTypes(t *testing.T) {
	when := time.Date(2026, 8, 24, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	// GIVEN the shapes a timestamp column arrives in
	row := Row{
		"absent":  nil,
		"native":  when,
		"empty":   "",
		"rfc3339": "2026-08-24T07:30:00Z",
		"garbage": "yesterday",
	}

	// THEN native times come back in UTC
	got := row.timePtr("native")
	require.NotNil(t, got)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(when))

	// AND strings parse as RFC3339 or decode to nil
	got = row.timePtr("rfc3339")
	require.NotNil(t, got)
	assert.True(t, got.Equal(when))
	assert.Nil(t, row.timePtr("absent"))
	assert.Nil(t, row.timePtr("empty"))
	assert.Nil(t, row.timePtr("garbage"))

	// AND the non-pointer accessor yields the zero time for null
	assert.True(t, row.at("absent").IsZero())
	assert.True(t, row.at("native").Equal(when))
}

func TestRowAmountNormalizesDriverTypes(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  decimal.Decimal
	}{
		{"missing column", nil, decimal.Zero},
		{"numeric string", "25000.50", decimal.RequireFromString("25000.50")},
		{"garbage string", "a lot", decimal.Zero},
		{"float64", 99.5, decimal.RequireFromString("99.5")},
		{"int64", int64(15000), decimal.NewFromInt(15000)},
		{"other types go through Sprint", int32(42), decimal.NewFromInt(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := Row{"col": tt.value}
			assert.True(t, tt.want.Equal(row.amount("col")), "got %s", row.amount("col"))
		})
	}
}

func TestRowAmountPtrKeepsNullDistinctFromZero(t *testing.T) {
	row := Row{"absent": nil, "zero": "0.00"}

	assert.Nil(t, row.amountPtr("absent"))
	p := row.amountPtr("zero")
	require.NotNil(t, p)
	assert.True(t, p.IsZero())
}
