package metrics

import(
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObservePull("x", time.Second)
		r.LensResolved("db")
		r.StateRebuilt("p")
	})
	assert.Nil(t, r.Summary())
}

func TestRecorder(t *testing.T) {
	r := New()
	for i:=1; i<=100; i++ {
		r.ObservePull("render", time.Duration(i) * time.Millisecond)
	}
	r.ObservePull("lens", 5 * time.Millisecond)
	r.LensResolved("neutral")
	r.LensResolved("neutral")

	assert.Equal(t, 100.0, testutil.ToFloat64(r.pulls.WithLabelValues("render")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.lensOutcomes.WithLabelValues("neutral")))

	sum := r.Summary()
	require.Len(t, sum, 2)
	assert.Equal(t, "lens", sum[0].Node)
	assert.Equal(t, "render", sum[1].Node)
	assert.Equal(t, int64(100), sum[1].Count)
	assert.InDelta(t, float64(50*time.Millisecond), float64(sum[1].P50), float64(time.Millisecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(sum[1].Max), float64(time.Millisecond))
}
