package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_DefaultBoundaries(t *testing.T) {
	b := DefaultBoundaries()
	cases := []struct {
		index float64
		want  Sentiment
	}{
		{0, ExtremeFear},
		{15, ExtremeFear},
		{19.99, ExtremeFear},
		{20, Fear},
		{39, Fear},
		{40, Neutral},
		{59.9, Neutral},
		{60, Greed},
		{79, Greed},
		{80, ExtremeGreed},
		{100, ExtremeGreed},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.index, b), "index %v", c.index)
	}
}

func TestClassify_OutOfRangeIsNeutral(t *testing.T) {
	b := DefaultBoundaries()
	for _, idx := range []float64{-1, 100.5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.Equal(t, Neutral, Classify(idx, b), "index %v", idx)
	}
}

func TestClassify_MalformedBoundariesIsNeutral(t *testing.T) {
	bad := []Boundaries{
		{ExtremeFear: 40, Fear: 20, Greed: 60, ExtremeGreed: 80},
		{ExtremeFear: 20, Fear: 20, Greed: 60, ExtremeGreed: 80},
		{ExtremeFear: 20, Fear: 40, Greed: 60, ExtremeGreed: 120},
		{ExtremeFear: math.NaN(), Fear: 40, Greed: 60, ExtremeGreed: 80},
	}
	for _, b := range bad {
		assert.Equal(t, Neutral, Classify(5, b))
		assert.Equal(t, Neutral, Classify(95, b))
	}
}

// Para cada índice en [0,100] el resultado no retrocede nunca en el orden de Sentiments.
func TestClassify_Monotonic(t *testing.T) {
	rank := map[Sentiment]int{}
	for i, s := range Sentiments {
		rank[s] = i
	}
	for _, b := range []Boundaries{
		DefaultBoundaries(),
		{ExtremeFear: 10, Fear: 25, Greed: 75, ExtremeGreed: 90},
		{ExtremeFear: 0, Fear: 1, Greed: 99, ExtremeGreed: 100},
	} {
		prev := -1
		for i := 0; i <= 1000; i++ {
			s := Classify(float64(i)/10, b)
			assert.True(t, s.Valid())
			assert.GreaterOrEqual(t, rank[s], prev)
			prev = rank[s]
		}
	}
}

func TestSentimentDirection(t *testing.T) {
	assert.Equal(t, Buy, ExtremeFear.Direction())
	assert.Equal(t, Buy, Fear.Direction())
	assert.Equal(t, Hold, Neutral.Direction())
	assert.Equal(t, Sell, Greed.Direction())
	assert.Equal(t, Sell, ExtremeGreed.Direction())
	assert.Equal(t, Hold, Sentiment("PANIC").Direction())
}

func TestBoundariesValidate(t *testing.T) {
	assert.NoError(t, DefaultBoundaries().Validate())
	assert.ErrorIs(t, Boundaries{ExtremeFear: 50, Fear: 40, Greed: 60, ExtremeGreed: 80}.Validate(), ErrInvalidBoundaries)
	assert.ErrorIs(t, Boundaries{ExtremeFear: -5, Fear: 40, Greed: 60, ExtremeGreed: 80}.Validate(), ErrInvalidBoundaries)
}
