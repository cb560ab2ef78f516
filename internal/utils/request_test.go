package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestWantsHTML(t *testing.T) {
	type testCase struct {
		accept string
		exp    bool
	}
	testCases := []testCase{
		{accept: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", exp: true},
		{accept: "application/json", exp: false},
		{accept: "", exp: false},
	}
	e := echo.New()
	for _, tc := range testCases {
		req := httptest.NewRequest(http.MethodGet, "/board", nil)
		req.Header.Set(echo.HeaderAccept, tc.accept)
		c := e.NewContext(req, httptest.NewRecorder())
		assert.Equal(t, tc.exp, WantsHTML(c), tc.accept)
	}
}

func TestGetRequestID(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	rec.Header().Set(echo.HeaderXRequestID, "abc")

	assert.Equal(t, "abc", GetRequestID(c))
	assert.Equal(t, "", GetTraceID(c))
}
