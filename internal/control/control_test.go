package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusReflectsIdleThenRunning(t *testing.T) {
	c := New()
	server := httptest.NewServer(c.Router())
	defer server.Close()

	resp, err := http.Get(server.URL + "/status")
	require.NoError(t, err)
	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.False(t, status.Running)

	_, cancel := context.WithCancel(context.Background())
	c.Start("dalgali_yuk", "attack", 3, cancel)

	resp, err = http.Get(server.URL + "/status")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.True(t, status.Running)
	assert.Equal(t, "dalgali_yuk", status.Scenario)
	assert.Equal(t, 3, status.Stations)
}

func TestStopCancelsRunningContextAndConflictsWhenIdle(t *testing.T) {
	c := New()
	server := httptest.NewServer(c.Router())
	defer server.Close()

	resp, err := http.Post(server.URL+"/stop", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c.Start("voltage_sag", "normal", 1, cancel)

	resp, err = http.Post(server.URL+"/stop", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected context to be canceled by /stop")
	}
}
