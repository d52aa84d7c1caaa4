package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolScheme(t *testing.T) {
	tests := []struct {
		scheme SymbolScheme
		want   string
	}{
		{SymbolScheme{Underscore: true}, "dgesv_"},
		{SymbolScheme{Suffix: "64_", Underscore: true}, "dgesv_64_"},
		{SymbolScheme{Prefix: "scipy_", Suffix: "64_", Underscore: true}, "scipy_dgesv_64_"},
		{SymbolScheme{Prefix: "my_"}, "my_dgesv"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scheme.Name("DGESV"))
			assert.NoError(t, tt.scheme.Validate())
		})
	}
}

func TestSymbolMapping(t *testing.T) {
	m := DefaultSymbolMapping()
	assert.NoError(t, m.Validate())
	assert.Equal(t, "dgesv_", m.LP64Name("dgesv"))
	assert.Equal(t, "dgesv_64_", m.ILP64Name("dgesv"))

	bad := []SymbolMapping{
		{LP64: SymbolScheme{Underscore: true}, ILP64: SymbolScheme{Underscore: true}},
		{LP64: SymbolScheme{Underscore: true}, ILP64: SymbolScheme{Suffix: "_"}},
		{LP64: SymbolScheme{Prefix: "a b"}, ILP64: SymbolScheme{Suffix: "64_"}},
		{LP64: SymbolScheme{}, ILP64: SymbolScheme{Suffix: "64-"}},
	}
	for _, m := range bad {
		assert.Error(t, m.Validate(), "%+v", m)
	}
}
