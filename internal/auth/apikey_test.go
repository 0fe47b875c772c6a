package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(keys string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(keys))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		keys    string
		header  string
		query   string
		upgrade bool
		want    int
	}{
		{"auth disabled", "", "", "", false, http.StatusOK},
		{"missing key", "secret", "", "", false, http.StatusUnauthorized},
		{"wrong key", "secret", "guess", "", false, http.StatusForbidden},
		{"valid key", "secret", "secret", "", false, http.StatusOK},
		{"rotated key", "old, new", "new", "", false, http.StatusOK},
		{"query key ignored for plain requests", "secret", "", "secret", false, http.StatusUnauthorized},
		{"query key on websocket upgrade", "secret", "", "secret", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/ping"
			if tt.query != "" {
				url += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			w := httptest.NewRecorder()
			newRouter(tt.keys).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestParseKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ParseKeys(" a, ,b ,"))
	assert.Nil(t, ParseKeys(""), "empty input should yield no keys")
}
