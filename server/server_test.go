package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	age        = feature.NewContinuousFeature("age")
	sex        = feature.NewDiscreteFeature("sex", []string{"0", "1"})
	covariates = []feature.Feature{age, sex}
)

func testServer(t *testing.T) *httptest.Server {
	leaves := []*summary.Leaf{
		{ID: 1, NodeID: "1.1", Conditions: []feature.Criterion{feature.LessOrEqualThan(age, 42.5)}, Subjects: 20, Samples: 80, IOI: 0.5},
		{ID: 2, NodeID: "1.2.1", Conditions: []feature.Criterion{feature.GreaterThan(age, 42.5), feature.InSet(sex, "0")}, Subjects: 10, Samples: 40, IOI: 0.4},
		{ID: 3, NodeID: "1.2.2", Conditions: []feature.Criterion{feature.GreaterThan(age, 42.5), feature.NotInSet(sex, "0")}, Subjects: 10, Samples: 40, IOI: 0.6},
	}
	srv := httptest.NewServer(New(leaves, covariates, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]interface{}) {
	resp, err := http.Post(srv.URL+"/assign", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return resp, result
}

func TestHealthz(t *testing.T) {
	resp, err := http.Get(testServer(t).URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListLeaves(t *testing.T) {
	resp, err := http.Get(testServer(t).URL + "/leaves")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	leaves, err := summary.ReadJSON(resp.Body, covariates)
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	assert.Equal(t, "age > 42.5 AND sex not in {0}", leaves[2].Rule())
}

func TestAssign(t *testing.T) {
	srv := testServer(t)
	testCases := []struct {
		body string
		leaf float64
		node string
	}{
		{`{"age": 30, "sex": "1"}`, 1, "1.1"},
		{`{"age": 50, "sex": "0"}`, 2, "1.2.1"},
		{`{"age": "50", "sex": 1, "other": true}`, 3, "1.2.2"},
	}
	for _, tc := range testCases {
		resp, result := post(t, srv, tc.body)
		assert.Equal(t, http.StatusOK, resp.StatusCode, tc.body)
		assert.Equal(t, tc.leaf, result["leaf"], tc.body)
		assert.Equal(t, tc.node, result["node"], tc.body)
	}
}

func TestAssignSubjectVisits(t *testing.T) {
	srv := testServer(t)
	resp, result := post(t, srv, `[{"age": 41, "sex": "1"}, {"age": 42}, {"age": 44, "sex": "1"}, {"age": 45}]`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3.0, result["leaf"])
	assert.Equal(t, "1.2.2", result["node"])

	resp, result = post(t, srv, `{"age": 41, "sex": "1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, result["leaf"])

	for _, body := range []string{`[]`, `[{"age": 50, "sex": "0"}, {"age": 50, "sex": "1"}]`, `[{"age": 50}, "sex"]`} {
		resp, _ := post(t, srv, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestAssignWithoutMatch(t *testing.T) {
	resp, result := post(t, testServer(t), `{"age": 50}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, result["error"], "any leaf")
}

func TestAssignWithInvalidRow(t *testing.T) {
	srv := testServer(t)
	for _, body := range []string{`[1, 2]`, `{"age": "old"}`, `{"sex": "2"}`, `{"age": [1]}`} {
		resp, _ := post(t, srv, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}
