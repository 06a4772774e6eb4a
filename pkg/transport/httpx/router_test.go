package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChiRouter_FallbackAndRoutes(t *testing.T) {
	r := NewChi()
	var order []string
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			order = append(order, "mw")
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("scrape")) }))
	r.Handle(http.MethodPost, "/hook", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }))
	r.Fallback(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) { _, _ = w.Write([]byte("fallback " + req.Method)) }))

	cases := []struct {
		method, path, body string
		code               int
	}{
		{http.MethodGet, "/metrics", "scrape", http.StatusOK},
		{http.MethodPost, "/hook", "", http.StatusAccepted},
		{http.MethodGet, "/", "fallback GET", http.StatusOK},
		{http.MethodDelete, "/a/b/c", "fallback DELETE", http.StatusOK},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		r.Mux().ServeHTTP(rec, httptest.NewRequest(c.method, c.path, nil))
		assert.Equal(t, c.code, rec.Code, "%s %s", c.method, c.path)
		assert.Equal(t, c.body, rec.Body.String(), "%s %s", c.method, c.path)
	}
	assert.Len(t, order, len(cases))
}
