package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_ValidateChecksArityAndColumnTypes(t *testing.T) {
	s := Schema{Name: "edge", Columns: []Kind{Symbol, Integer}}

	require.NoError(t, s.Validate(Tuple{Sym("a"), Int(1)}))

	err := s.Validate(Tuple{Sym("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arity")

	err = s.Validate(Tuple{Sym("a"), Sym("b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column 1")
}

func TestTuple_EqualIsComponentwise(t *testing.T) {
	a := Tuple{Sym("x"), Int(1)}
	b := Tuple{Sym("x"), Int(1)}
	c := Tuple{Sym("x"), Int(2)}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Tuple{Sym("x")}))
}
