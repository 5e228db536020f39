package compiler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-cells/cellrun/internal/domain"
)

func TestParseWebGrammarParsesMethodPathFunctionAndParams(t *testing.T) {
	method, path, fn, params, err := parseWebGrammar("POST / add [a, b]")
	require.NoError(t, err)
	assert.Equal(t, "POST", method)
	assert.Equal(t, "/", path)
	assert.Equal(t, "add", fn)
	assert.Equal(t, []string{"a", "b"}, params)
}

func TestParseWebGrammarAllowsNoParams(t *testing.T) {
	method, path, fn, params, err := parseWebGrammar("GET /status health")
	require.NoError(t, err)
	assert.Equal(t, "GET", method)
	assert.Equal(t, "/status", path)
	assert.Equal(t, "health", fn)
	assert.Empty(t, params)
}

func TestParseWebGrammarRejectsMalformedHeader(t *testing.T) {
	_, _, _, _, err := parseWebGrammar("POST /")
	assert.Error(t, err)
}

func TestCoerceQueryValue(t *testing.T) {
	assert.Equal(t, int64(123), coerceQueryValue("123"))
	assert.Equal(t, 1.5, coerceQueryValue("1.5"))
	assert.Equal(t, true, coerceQueryValue("true"))
	assert.Equal(t, "hello", coerceQueryValue("hello"))
}

func TestWebCellInvokesFunctionAndReturnsJSONResult(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New("")
	c.Router = gin.New()

	var invokedWith map[string]domain.SV
	c.Invoke = func(ctx context.Context, fnName string, kwargs map[string]domain.SV) (domain.SV, error) {
		invokedWith = kwargs
		a, _ := kwargs["a"].AsInt()
		b, _ := kwargs["b"].AsInt()
		return domain.Int(a + b), nil
	}

	cell := domain.CellDecl{ID: "p#1", Kind: domain.CellWeb, Name: "addRoute", Source: "POST / add [a,b]"}
	op, free, err := c.compileWeb(cell)
	require.NoError(t, err)
	assert.Equal(t, []string{"add"}, free)
	assert.Equal(t, domain.OutputValue, op.Output.Kind)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":123,"b":456}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c.Router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "579", strings.TrimSpace(rec.Body.String()))
	require.NotNil(t, invokedWith)
	a, _ := invokedWith["a"].AsInt()
	assert.Equal(t, int64(123), a)
}

func TestWebCellReadsQueryParamsForGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New("")
	c.Router = gin.New()

	var gotX int64
	c.Invoke = func(ctx context.Context, fnName string, kwargs map[string]domain.SV) (domain.SV, error) {
		gotX, _ = kwargs["x"].AsInt()
		return domain.Int(gotX), nil
	}

	cell := domain.CellDecl{ID: "p#2", Kind: domain.CellWeb, Name: "getRoute", Source: "GET /double double [x]"}
	_, _, err := c.compileWeb(cell)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/double?x=21", nil)
	rec := httptest.NewRecorder()
	c.Router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(21), gotX)
}
