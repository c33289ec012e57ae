package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoCIntegratorAccumulatesAndClamps(t *testing.T) {
	integrator := NewSoCIntegrator(60.0, 99.9999)
	for i := 0; i < 10; i++ {
		integrator.Advance(7.0)
	}
	assert.Equal(t, 100.0, integrator.SoC())
}

func TestSoCIntegratorIgnoresNegativePower(t *testing.T) {
	integrator := NewSoCIntegrator(60.0, 50.0)
	before := integrator.SoC()
	after := integrator.Advance(-5.0)
	assert.Equal(t, before, after)
}

func TestSoCIntegratorMonotonicUnderPositivePower(t *testing.T) {
	integrator := NewSoCIntegrator(60.0, 20.0)
	prev := integrator.SoC()
	for i := 0; i < 5; i++ {
		next := integrator.Advance(7.0)
		assert.GreaterOrEqual(t, next, prev)
		prev = next
	}
}
