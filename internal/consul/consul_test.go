package consul

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aihub/classroom-rag/internal/config"
	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgent 模拟 Consul HTTP API 的最小子集
func fakeAgent(t *testing.T, kv map[string]string, registered *api.AgentServiceRegistration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/health/state/"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("[]"))
		case strings.HasPrefix(r.URL.Path, "/v1/kv/"):
			key := strings.TrimPrefix(r.URL.Path, "/v1/kv/")
			v, ok := kv[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Consul-Index", "1")
			_ = json.NewEncoder(w).Encode([]api.KVPair{{Key: key, Value: []byte(v)}})
		case r.URL.Path == "/v1/agent/service/register":
			require.NoError(t, json.NewDecoder(r.Body).Decode(registered))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDisabledClientIsNoop(t *testing.T) {
	c, err := NewClient("", false, nil)
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())

	reg := NewServiceRegistry(c, "id", "name", nil)
	assert.NoError(t, reg.Register(&config.Config{}))
	assert.NoError(t, reg.Deregister())

	cfg := &config.Config{Retrieval: config.RetrievalConfig{TopK: 3}}
	ApplyTunables(c, "edurag", cfg, nil)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
}

func TestApplyTunables(t *testing.T) {
	srv := fakeAgent(t, map[string]string{
		"edurag/retrieval/top_k":               "5",
		"edurag/generation/temperature":        "not-a-number",
		"edurag/generation/model":              "gpt-4o",
		"edurag/generation/validator_attempts": "6",
	}, &api.AgentServiceRegistration{})

	c, err := NewClient(strings.TrimPrefix(srv.URL, "http://"), true, nil)
	require.NoError(t, err)
	require.True(t, c.IsEnabled())

	cfg := &config.Config{
		Retrieval:  config.RetrievalConfig{TopK: 3},
		Generation: config.GenerationConfig{Temperature: 0.3, Model: "gpt-4o-mini", ValidatorAttempts: 4},
	}
	ApplyTunables(c, "edurag", cfg, nil)

	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 0.3, cfg.Generation.Temperature)
	assert.Equal(t, "gpt-4o", cfg.Generation.Model)
	assert.Equal(t, 6, cfg.Generation.ValidatorAttempts)
}

func TestServiceRegistry_Register(t *testing.T) {
	var registered api.AgentServiceRegistration
	srv := fakeAgent(t, nil, &registered)

	c, err := NewClient(strings.TrimPrefix(srv.URL, "http://"), true, nil)
	require.NoError(t, err)

	t.Setenv("SERVICE_HOST", "rag.internal")
	cfg := &config.Config{
		Server:      config.ServerConfig{Port: "8080", Env: "test"},
		VectorIndex: config.VectorIndexConfig{Provider: "qdrant"},
	}
	require.NoError(t, NewServiceRegistry(c, "classroom-rag-1", "classroom-rag", nil).Register(cfg))

	assert.Equal(t, "classroom-rag-1", registered.ID)
	assert.Equal(t, 8080, registered.Port)
	assert.Equal(t, "http://rag.internal:8080/health", registered.Check.HTTP)
	assert.Equal(t, "qdrant", registered.Meta["vector_index"])
}
