// internal/middleware/i18n_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestI18nMiddlewareLanguageDetection(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(I18nMiddleware())
	r.GET("/lang", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("lang"))
	})

	cases := []struct {
		name           string
		path           string
		acceptLanguage string
		want           string
	}{
		{"no preference defaults to english", "/lang", "", "en"},
		{"query parameter", "/lang?lang=it", "", "it"},
		{"query wins over header", "/lang?lang=en", "it", "en"},
		{"plain header", "/lang", "it", "it"},
		{"weighted header", "/lang", "it-IT,it;q=0.9,en;q=0.8", "it"},
		{"regional english", "/lang", "en-US,en;q=0.9", "en"},
		{"unsupported language falls back", "/lang", "fr-FR,fr;q=0.9", "en"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.acceptLanguage != "" {
				req.Header.Set("Accept-Language", tc.acceptLanguage)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.want, w.Body.String())
		})
	}
}
