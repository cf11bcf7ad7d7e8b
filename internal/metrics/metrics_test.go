// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetSessionState_ExactlyOneActive(t *testing.T) {
	all := []string{"IDLE", "LOADING", "PLAYING"}
	SetSessionState("LOADING", all)

	require.Equal(t, 0.0, testutil.ToFloat64(sessionState.WithLabelValues("IDLE")))
	require.Equal(t, 1.0, testutil.ToFloat64(sessionState.WithLabelValues("LOADING")))
	require.Equal(t, 0.0, testutil.ToFloat64(sessionState.WithLabelValues("PLAYING")))
}

func TestEventMetrics_DefaultTopic(t *testing.T) {
	before := testutil.ToFloat64(eventsDropped.WithLabelValues("unknown"))
	RecordEventDrop("")
	require.Equal(t, before+1, testutil.ToFloat64(eventsDropped.WithLabelValues("unknown")))

	SetEventSubscribers("sync", 3)
	require.Equal(t, 3.0, testutil.ToFloat64(eventSubscribers.WithLabelValues("sync")))
}

func TestRecordSyncOp(t *testing.T) {
	before := testutil.ToFloat64(syncOps.WithLabelValues("upload", "success"))
	RecordSyncOp("upload", "success", 0.2)
	require.Equal(t, before+1, testutil.ToFloat64(syncOps.WithLabelValues("upload", "success")))
}
