package httpjson

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/groupchat/internal/app/system/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestError_MapsKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
		body   string
	}{
		{apperr.NotFound("group not found"), 404, `{"error":"group not found"}`},
		{apperr.Capacity("group is full"), 403, `{"error":"group is full"}`},
		{apperr.RateLimited("slow down"), 429, `{"error":"slow down"}`},
		{errors.New("dial tcp 10.0.0.1"), 500, `{"error":"internal server error"}`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		Error(rec, httptest.NewRequest("GET", "/x", nil), zap.NewNop(), tt.err)
		assert.Equal(t, tt.status, rec.Code)
		assert.JSONEq(t, tt.body, rec.Body.String())
	}
}

func TestError_LogsOnlyServerErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)
	req := httptest.NewRequest("GET", "/x", nil)

	Error(httptest.NewRecorder(), req, log, apperr.Forbidden("no"))
	assert.Equal(t, 0, logs.Len())

	Error(httptest.NewRecorder(), req, log, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterMessage("request failed").Len())
}

func TestDecode(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"Team"}`))
	require.NoError(t, Decode(httptest.NewRecorder(), req, &v))
	assert.Equal(t, "Team", v.Name)

	req = httptest.NewRequest("POST", "/", strings.NewReader(``))
	assert.NoError(t, Decode(httptest.NewRecorder(), req, &v))

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"name":`))
	err := Decode(httptest.NewRecorder(), req, &v)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
}

func TestQueryParams(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=5&before=true&bad=x", nil)

	n, err := QueryInt(req, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = QueryInt(req, "missing", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	_, err = QueryInt(req, "bad", 50)
	assert.True(t, apperr.Is(err, apperr.KindInvalidArgument))

	b, err := QueryBool(req, "before", false)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = QueryBool(req, "missing", true)
	require.NoError(t, err)
	assert.True(t, b, "absent parameter takes the default")

	b, err = QueryBool(req, "missing", false)
	require.NoError(t, err)
	assert.False(t, b)

	_, err = QueryBool(req, "bad", false)
	assert.Error(t, err)
}
