package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "ragkit/pkg/errors"
)

func TestParseQueryMode(t *testing.T) {
	for in, want := range map[string]QueryMode{
		"":                ModeDefault,
		"default":         ModeDefault,
		"SPARSE":          ModeSparse,
		"hybrid":          ModeHybrid,
		"semantic_hybrid": ModeSemanticHybrid,
	} {
		got, err := ParseQueryMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseQueryMode("mmr")
	assert.ErrorIs(t, err, ragerrors.ErrUnsupportedQueryMode)
}

func TestMetadataFiltersValidate(t *testing.T) {
	f := &MetadataFilters{Filters: []MetadataFilter{{Key: "theme", Value: "Mafia"}}}
	require.NoError(t, f.Validate())
	assert.Equal(t, CondAnd, f.Condition)
	assert.Equal(t, OpEQ, f.Filters[0].Operator)

	var nilFilters *MetadataFilters
	assert.NoError(t, nilFilters.Validate())

	bad := []*MetadataFilters{
		{Condition: "xor", Filters: []MetadataFilter{{Key: "a", Value: 1}}},
		{Filters: []MetadataFilter{{Value: 1}}},
		{Filters: []MetadataFilter{{Key: "a", Value: 1, Operator: "like"}}},
		{Filters: []MetadataFilter{{Key: "a", Value: "x", Operator: OpIn}}},
		{Filters: []MetadataFilter{{Key: "a", Value: []any{"x"}, Operator: OpEQ}}},
	}
	for _, f := range bad {
		assert.ErrorIs(t, f.Validate(), ragerrors.ErrValidation)
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("theme=Mafia")
	require.NoError(t, err)
	assert.Equal(t, MetadataFilter{Key: "theme", Value: "Mafia", Operator: OpEQ}, f)

	f, err = ParseFilter("year >= 1990")
	require.NoError(t, err)
	assert.Equal(t, MetadataFilter{Key: "year", Value: "1990", Operator: OpGTE}, f)

	_, err = ParseFilter("nonsense")
	assert.ErrorIs(t, err, ragerrors.ErrValidation)

	_, err = ParseFilter("=Mafia")
	assert.ErrorIs(t, err, ragerrors.ErrValidation)
}

func TestParseFilterSplitsOnLeftmostOperator(t *testing.T) {
	cases := []struct {
		in   string
		want MetadataFilter
	}{
		{"title=a>b", MetadataFilter{Key: "title", Value: "a>b", Operator: OpEQ}},
		{"title==x!=y", MetadataFilter{Key: "title", Value: "x!=y", Operator: OpEQ}},
		{"x>=1", MetadataFilter{Key: "x", Value: "1", Operator: OpGTE}},
		{"x!=y", MetadataFilter{Key: "x", Value: "y", Operator: OpNE}},
		{"x<=a=b", MetadataFilter{Key: "x", Value: "a=b", Operator: OpLTE}},
		{"year<2000", MetadataFilter{Key: "year", Value: "2000", Operator: OpLT}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			f, err := ParseFilter(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, f)
		})
	}
}
