package metrics

import (
	"errors"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestTransitionCounterIsLabelled(t *testing.T) {
	c := TransitionCounter.WithLabelValues("ACTIVE", "ok")
	read := func() float64 {
		var m dto.Metric
		require.NoError(t, c.Write(&m))
		return m.GetCounter().GetValue()
	}
	before := read()
	c.Inc()
	assert.Equal(t, before+1, read())
}
