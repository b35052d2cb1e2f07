package rangeset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		ranges []Range
		ok     bool
	}{
		{"empty", nil, true},
		{"single value", []Range{{3, 3}}, true},
		{"gapped", []Range{{1, 3}, {5, 9}}, true},
		{"adjacent", []Range{{1, 3}, {4, 9}}, false},
		{"overlapping", []Range{{1, 5}, {4, 9}}, false},
		{"unsorted", []Range{{5, 9}, {1, 3}}, false},
		{"reversed range", []Range{{4, 2}}, false},
		{"above limit", []Range{{1, MaxValue + 1}}, false},
		{"below limit", []Range{{MinValue - 1, 0}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.ranges...)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, len(tt.ranges), len(s))
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotCanonical))
		})
	}
}

func TestMust_PanicsOnMalformed(t *testing.T) {
	assert.Panics(t, func() { Must(Range{1, 2}, Range{3, 4}) })
	assert.NotPanics(t, func() { Must(Range{1, 2}, Range{4, 4}) })
}

func TestOf_PanicsOutsideLimits(t *testing.T) {
	for _, v := range []int{MaxValue + 1, MinValue - 1} {
		func() {
			defer func() {
				err, ok := recover().(error)
				assert.True(t, ok, "value %d", v)
				assert.ErrorIs(t, err, ErrNotCanonical)
			}()
			Of(1, v)
		}()
	}
	assert.NotPanics(t, func() { Of(MinValue, MaxValue) })
	assert.Panics(t, func() { Interval(0, MaxValue+1) })
}

func TestOf(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		want   Set
	}{
		{"none", nil, nil},
		{"one", []int{4}, Set{{4, 4}}},
		{"run", []int{3, 1, 2}, Set{{1, 3}}},
		{"duplicates", []int{2, 2, 2, 5, 5}, Set{{2, 2}, {5, 5}}},
		{"negative", []int{-3, -2, 0, 1}, Set{{-3, -2}, {0, 1}}},
		{"mixed", []int{10, 1, 2, 3, 7, 8}, Set{{1, 3}, {7, 8}, {10, 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.values...))
		})
	}
}

func TestInterval(t *testing.T) {
	assert.Equal(t, Set{{2, 5}}, Interval(2, 5))
	assert.True(t, Interval(5, 2).Empty())
}

func TestSet_Queries(t *testing.T) {
	s := Must(Range{1, 3}, Range{7, 7}, Range{10, 12})

	assert.Equal(t, 7, s.Size())
	assert.Equal(t, 1, s.Min())
	assert.Equal(t, 12, s.Max())
	assert.False(t, s.Empty())

	for _, v := range []int{1, 2, 3, 7, 10, 11, 12} {
		assert.True(t, s.Contains(v), "should contain %d", v)
	}
	for _, v := range []int{0, 4, 6, 8, 9, 13} {
		assert.False(t, s.Contains(v), "should not contain %d", v)
	}

	assert.Equal(t, []int{1, 2, 3, 7, 10, 11, 12}, s.Values())
	assert.Equal(t, "{1..3,7,10..12}", s.String())
	assert.Equal(t, "{}", Set(nil).String())

	var empty Set
	assert.Equal(t, 0, empty.Size())
	assert.Equal(t, 0, empty.Min())
	assert.Equal(t, 0, empty.Max())
	assert.False(t, empty.Contains(0))
}

func TestSet_IncludeExclude(t *testing.T) {
	s := Of(1, 2, 3, 7)

	assert.Equal(t, Of(1, 2, 3, 4, 7), s.Include(4))
	assert.Equal(t, Of(1, 2, 3, 5, 7), s.Include(5))
	assert.Equal(t, Of(1, 2, 3, 6, 7), s.Include(6))
	assert.Equal(t, s, s.Include(2))

	assert.Equal(t, Of(1, 3, 7), s.Exclude(2))
	assert.Equal(t, Of(1, 2, 3), s.Exclude(7))
	assert.Equal(t, s, s.Exclude(5))

	// receiver untouched
	assert.Equal(t, Of(1, 2, 3, 7), s)

	var empty Set
	assert.Equal(t, Of(9), empty.Include(9))
	assert.True(t, empty.Exclude(9).Empty())
}

func TestSet_Equal(t *testing.T) {
	assert.True(t, Of(1, 2, 5).Equal(Must(Range{1, 2}, Range{5, 5})))
	assert.False(t, Of(1, 2, 5).Equal(Of(1, 2)))
	assert.False(t, Of(1, 2, 5).Equal(Of(1, 2, 6)))
	assert.True(t, Set(nil).Equal(Set{}))
}
