package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(nil)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleEvaluate_TransitiveClosure(t *testing.T) {
	s := newTestServer()

	program := `
.decl edge(x: symbol, y: symbol).
.decl path(x: symbol, y: symbol).
.input edge.
.output path.

path(X, Y) :- edge(X, Y).
path(X, Z) :- edge(X, Y), path(Y, Z).
`
	body := `{"program": ` + jsonString(program) + `, "facts": {"edge": ["a,b", "b,c"]}}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp evaluateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/relations/path?run_id="+resp.RunID, nil)
	s.Handler().ServeHTTP(w2, req2)

	require.Equal(t, http.StatusOK, w2.Code)
	var relResp struct {
		Rows [][]string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &relResp))
	assert.Len(t, relResp.Rows, 3) // ab, bc, ac
}

func TestHandleEvaluate_MalformedProgramReturnsBadRequest(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(`{"program": "not_declared(X, Y) :- missing(X, Y)."}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRelation_UnknownRunIDReturnsNotFound(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/relations/path?run_id=missing", nil)
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
