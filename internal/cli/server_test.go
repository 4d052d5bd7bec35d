package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand"
	"github.com/aretw0/strand/pkg/adapters/memory"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/observability"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	demo, err := LookupDemo("chain")
	require.NoError(t, err)
	graph, err := strand.Compile(demo.Build(&ScriptedModel{}, nil),
		strand.WithStore(store),
		strand.WithLifecycleHooks(metrics.Hooks()))
	require.NoError(t, err)
	_, err = graph.Invoke(context.Background(), domain.Update{"topic": "bees"}, "jokes")
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(&Server{Store: store, Gatherer: reg}))
	t.Cleanup(srv.Close)
	return srv, store
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var sb strings.Builder
	_, err = io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, sb.String()
}

func TestServer_Endpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("healthz", func(t *testing.T) {
		code, body := get(t, srv.URL+"/healthz")
		assert.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `{"status":"ok"}`, body)
	})

	t.Run("threads", func(t *testing.T) {
		code, body := get(t, srv.URL+"/threads")
		assert.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `["jokes"]`, body)
	})

	t.Run("latest checkpoint", func(t *testing.T) {
		code, body := get(t, srv.URL+"/threads/jokes")
		require.Equal(t, http.StatusOK, code)
		var cp domain.Checkpoint
		require.NoError(t, json.Unmarshal([]byte(body), &cp))
		assert.Equal(t, 2, cp.Step)
		assert.Empty(t, cp.Next)
		assert.NotEmpty(t, cp.State["final_joke"])
	})

	t.Run("history newest first", func(t *testing.T) {
		code, body := get(t, srv.URL+"/threads/jokes/history")
		require.Equal(t, http.StatusOK, code)
		var history []domain.Checkpoint
		require.NoError(t, json.Unmarshal([]byte(body), &history))
		require.Len(t, history, 4)
		assert.Equal(t, 2, history[0].Step)
		assert.Equal(t, domain.InitialStep, history[3].Step)
	})

	t.Run("unknown thread", func(t *testing.T) {
		code, _ := get(t, srv.URL+"/threads/nope")
		assert.Equal(t, http.StatusNotFound, code)
		code, _ = get(t, srv.URL+"/threads/nope/history")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("graph with overlay", func(t *testing.T) {
		code, body := get(t, srv.URL+"/graphs/chain?thread=jokes")
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, strings.HasPrefix(body, "graph TD"))
		assert.Contains(t, body, "polish_joke")
		assert.Contains(t, body, "visited")
	})

	t.Run("unknown graph", func(t *testing.T) {
		code, _ := get(t, srv.URL+"/graphs/nope")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := get(t, srv.URL+"/metrics")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, `node="polish_joke"`)
	})
}

func TestThreadOverlay(t *testing.T) {
	_, store := newTestServer(t)

	overlay, err := threadOverlay(context.Background(), store, "jokes")
	require.NoError(t, err)
	assert.Equal(t, []string{"generate_joke", "improve_joke", "polish_joke"}, overlay.VisitedNodes)
	assert.Empty(t, overlay.Next)

	_, err = threadOverlay(context.Background(), store, "missing")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}
