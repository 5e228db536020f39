package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-cells/cellrun/internal/config"
	"github.com/lucid-cells/cellrun/internal/storage"
)

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWTSecret: "test-secret"}
	return New(cfg, storage.NewMemoryStore(), zerolog.Nop())
}

const demoMarkdown = "```code name=base\nbase = 10\n```\n"

func TestHealthz(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateInstanceAndFetchCells(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(createInstanceRequest{Markdown: demoMarkdown})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/instances", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		InstanceID string `json:"instance_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.InstanceID)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/instances/"+resp.InstanceID+"/cells", nil)
	s.Router.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Contains(t, w2.Body.String(), "base")
}

func TestMutatingRoutesRequireBearerToken(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/instances/does-not-matter/step", nil)
	s.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownInstanceReturnsNotFound(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/instances/nope/cells", nil)
	s.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
