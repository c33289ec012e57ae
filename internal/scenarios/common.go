// Package scenarios is the catalog of Scenario values the CLI
// resolves --scenario against, each grounded on one
// simulations/<name>/scenario.py module from original_source. Every
// scenario follows the same StatusNotification -> Authorize ->
// StartTransaction -> MeterValues loop -> StopTransaction choreography
// spec.md §4.5 describes; they differ only in how they modulate
// MeterValues and when they issue out-of-band actions, per spec.md
// §4.6 — so the choreography itself lives here, once, and each
// scenario supplies only its power function and label rule.
// DarkProfile is the exception: it runs its own copy of the start
// sequence so that it can pick a different id tag per CP.
package scenarios

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/aegischarge/simulator/internal/cpclient"
	"github.com/aegischarge/simulator/internal/engine"
	"github.com/aegischarge/simulator/internal/ocpp"
)

// idTag is the static credential every scenario authorizes with; the
// CSMS's authorized-tag table (wired at startup) must contain it.
const idTag = "SIM_TAG"

const connectorID = 1

// session tracks one CP's in-flight transaction and SoC integrator
// across a scenario's MeterValues loop.
type session struct {
	cp  *cpclient.Client
	txID int
	soc *engine.SoCIntegrator
}

// startSessions authorizes and starts a transaction on every cp,
// skipping (without error) any CP whose Authorize or StartTransaction
// is rejected — exactly the "this CP sends no further data" behavior
// spec.md §4.2/§4.3 specifies for an unauthorized tag.
func startSessions(ctx context.Context, cps []*cpclient.Client, capacityKWh, startSoC float64) []*session {
	sessions := make([]*session, 0, len(cps))

	for _, cp := range cps {
		cp.StatusNotification(ctx, connectorID, ocpp.StatusAvailable, "")
		time.Sleep(100 * time.Millisecond)

		status, err := cp.Authorize(ctx, idTag)
		if err != nil || status != "Accepted" {
			slog.Warn("authorize rejected, CP will not charge", "cp_id", cp.CPID)
			continue
		}

		cp.StatusNotification(ctx, connectorID, ocpp.StatusPreparing, "")
		time.Sleep(100 * time.Millisecond)

		result, err := cp.StartTransaction(ctx, connectorID, idTag, 0)
		if err != nil || result.TransactionID == 0 || result.Status != "Accepted" {
			slog.Warn("start transaction rejected", "cp_id", cp.CPID)
			continue
		}

		cp.StatusNotification(ctx, connectorID, ocpp.StatusCharging, "")
		sessions = append(sessions, &session{cp: cp, txID: result.TransactionID, soc: engine.NewSoCIntegrator(capacityKWh, startSoC)})
	}

	return sessions
}

// stopSession transitions one session through Finishing ->
// StopTransaction -> Available and marks it inactive (txID = 0).
func stopSession(ctx context.Context, s *session) {
	if s.txID == 0 {
		return
	}
	s.cp.StatusNotification(ctx, connectorID, ocpp.StatusFinishing, "")
	s.cp.StopTransaction(ctx, s.txID, 0, "Local")
	s.cp.StatusNotification(ctx, connectorID, ocpp.StatusAvailable, "")
	s.txID = 0
}

func stopAll(ctx context.Context, sessions []*session) {
	for _, s := range sessions {
		stopSession(ctx, s)
	}
}

// jitter returns a uniform random offset in [-spread, spread].
func jitter(spread float64) float64 {
	return (rand.Float64()*2 - 1) * spread
}

// sleepTick waits out the scenario's 1-second cadence, honoring ctx
// cancellation.
func sleepTick(ctx context.Context) {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
}
