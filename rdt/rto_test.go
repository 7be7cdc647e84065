package rdt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRTOFloor(t *testing.T) {
	e := newRTTEstimator()
	rto := e.Sample(1 * time.Microsecond)
	assert.GreaterOrEqual(t, rto, minRTO)
}

func TestRTOGrowsWithSustainedLatency(t *testing.T) {
	e := newRTTEstimator()
	e.Sample(50 * time.Millisecond)
	firstRTO := e.RTO()
	for i := 0; i < 5; i++ {
		e.Sample(200 * time.Millisecond)
	}
	assert.Greater(t, e.RTO(), firstRTO)
}

func TestRTOIsFiveTimesMean(t *testing.T) {
	e := newRTTEstimator()
	e.Sample(30 * time.Millisecond)
	e.Sample(30 * time.Millisecond)
	assert.Equal(t, 150*time.Millisecond, e.RTO())
}
