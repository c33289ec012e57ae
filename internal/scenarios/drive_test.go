package scenarios

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOscillatoryLoadDriveEmitsMeterValuesAndStops(t *testing.T) {
	httpServer := newTestCSMS(t)
	clients := connectClients(t, wsURLFor(httpServer), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := OscillatoryLoad{}
	err := s.Drive(ctx, clients, "attack", 1, testParams())
	require.NoError(t, err)
}

func TestMassStopDriveStopsSessionsAtTrigger(t *testing.T) {
	httpServer := newTestCSMS(t)
	clients := connectClients(t, wsURLFor(httpServer), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := MassStop{}
	params := testParams()
	params.AttackTriggerRatio = 0.0
	err := s.Drive(ctx, clients, "attack", 2, params)
	require.NoError(t, err)
}

func TestReverseChargingDriveHandlesNegativePower(t *testing.T) {
	httpServer := newTestCSMS(t)
	clients := connectClients(t, wsURLFor(httpServer), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := ReverseCharging{}
	err := s.Drive(ctx, clients, "attack", 1, testParams())
	require.NoError(t, err)
}

func TestDarkProfileDriveRunsFullLifecycleInBothModes(t *testing.T) {
	httpServer := newTestCSMS(t)
	clients := connectClients(t, wsURLFor(httpServer), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := DarkProfile{}
	err := s.Drive(ctx, clients, "attack", 2, testParams())
	require.NoError(t, err)

	err = s.Drive(ctx, clients, "normal", 2, testParams())
	require.NoError(t, err)
}

func TestSSRFProbeDriveStallsInAttackMode(t *testing.T) {
	httpServer := newTestCSMS(t)
	clients := connectClients(t, wsURLFor(httpServer), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := SSRFProbe{}
	start := time.Now()
	err := s.Drive(ctx, clients, "attack", 1, testParams())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
