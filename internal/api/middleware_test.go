package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKeyFrom(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"none", nil, ""},
		{"x-api-key", map[string]string{"X-API-Key": "k1"}, "k1"},
		{"bearer", map[string]string{"Authorization": "Bearer k2"}, "k2"},
		{"x-api-key wins", map[string]string{"X-API-Key": "k1", "Authorization": "Bearer k2"}, "k1"},
		{"basic is ignored", map[string]string{"Authorization": "Basic abc"}, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/speech/history", nil)
			for k, v := range c.header {
				r.Header.Set(k, v)
			}
			if got := apiKeyFrom(r); got != c.want {
				t.Errorf("apiKeyFrom = %q, want %q", got, c.want)
			}
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := APIKeyAuth("secret")(next)

	cases := []struct {
		name   string
		header map[string]string
		status int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
		{"valid header key", map[string]string{"X-API-Key": "secret"}, http.StatusNoContent},
		{"valid bearer key", map[string]string{"Authorization": "Bearer secret"}, http.StatusNoContent},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/v1/speech/generate", nil)
			for k, v := range c.header {
				r.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != c.status {
				t.Errorf("status = %d, want %d", w.Code, c.status)
			}
		})
	}
}
