package health_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memyselfandm/chronicle/internal/health"
)

func TestSnapshot_CountersAndRollingMean(t *testing.T) {
	m := health.New(health.Config{SampleWindow: 10})

	m.RecordProcessed(5, 10*time.Millisecond)
	m.RecordProcessed(3, 30*time.Millisecond)
	m.RecordError()

	snap := m.Snapshot()
	assert.Equal(t, int64(8), snap.ProcessedCount)
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.Equal(t, 20*time.Millisecond, snap.AverageProcessingTime)
}

func TestSnapshot_SampleWindowIsBounded(t *testing.T) {
	m := health.New(health.Config{SampleWindow: 4})

	// Four slow samples scroll out of the window once four fast ones land.
	for i := 0; i < 4; i++ {
		m.RecordProcessed(1, 100*time.Millisecond)
	}
	for i := 0; i < 4; i++ {
		m.RecordProcessed(1, 20*time.Millisecond)
	}

	assert.Equal(t, 20*time.Millisecond, m.Snapshot().AverageProcessingTime)
}

func TestHealthy_SingleFailureDoesNotFlip(t *testing.T) {
	m := health.New(health.Config{})

	m.RecordProcessed(10, time.Millisecond)
	m.RecordError()

	assert.True(t, m.Healthy())
}

func TestHealthy_SingleSlowBatchDoesNotFlip(t *testing.T) {
	m := health.New(health.Config{LatencyCeiling: 10 * time.Millisecond, DegradedWindows: 3})

	m.RecordProcessed(1, time.Second)
	assert.True(t, m.Healthy())

	m.RecordProcessed(1, time.Millisecond)
	assert.True(t, m.Healthy())
}

func TestHealthy_SustainedSlownessFlips(t *testing.T) {
	m := health.New(health.Config{LatencyCeiling: 10 * time.Millisecond, DegradedWindows: 3})

	for i := 0; i < 3; i++ {
		m.RecordProcessed(1, time.Second)
	}

	assert.False(t, m.Healthy())
}

func TestHealthy_SustainedErrorRateFlips(t *testing.T) {
	m := health.New(health.Config{ErrorRateThreshold: 0.5})

	m.RecordProcessed(2, time.Millisecond)
	for i := 0; i < 10; i++ {
		m.RecordError()
	}

	assert.False(t, m.Healthy())
}

func TestHealthy_LowErrorRateStaysHealthy(t *testing.T) {
	m := health.New(health.Config{ErrorRateThreshold: 0.5})

	m.RecordProcessed(90, time.Millisecond)
	for i := 0; i < 10; i++ {
		m.RecordError()
	}

	// 10 errors against 90 processed is a 10% rate, under the threshold.
	assert.True(t, m.Healthy())
}

func TestTipsFor_FlushAdviceAtHighWater(t *testing.T) {
	m := health.New(health.Config{})

	calm := m.TipsFor(10, 1000, 5, 50)
	assert.False(t, calm.ShouldFlushImmediately)
	assert.False(t, calm.ShouldReduceBatchSize)
	assert.Less(t, calm.MemoryPressureRatio, 0.1)

	loaded := m.TipsFor(600, 1000, 10, 50)
	assert.True(t, loaded.ShouldFlushImmediately)
	// Queue pressure alone is not enough to advise a smaller batch size.
	assert.False(t, loaded.ShouldReduceBatchSize)
}

func TestTipsFor_ReduceRequiresBothPressures(t *testing.T) {
	m := health.New(health.Config{})

	tips := m.TipsFor(950, 1000, 45, 50)
	assert.True(t, tips.ShouldFlushImmediately)
	assert.True(t, tips.ShouldReduceBatchSize)
	assert.GreaterOrEqual(t, tips.MemoryPressureRatio, 0.85)
}

func TestRecommendedBatchSize_Clamped(t *testing.T) {
	m := health.New(health.Config{})

	// No recorded throughput: recommendation sits at the floor.
	assert.Equal(t, 10, m.RecommendedBatchSize(100*time.Millisecond, 10, 500))

	// Heavy recent throughput pushes the recommendation up to the ceiling.
	for i := 0; i < 100; i++ {
		m.RecordProcessed(1000, time.Millisecond)
	}
	assert.Equal(t, 500, m.RecommendedBatchSize(time.Second, 10, 500))
}
