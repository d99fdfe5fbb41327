package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

// fakeVerifier принимает единственный валидный токен.
type fakeVerifier struct {
	validToken string
	principal  string
}

func (f *fakeVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	if rawToken == f.validToken {
		return f.principal, nil
	}
	return "", errors.New("невалидный или просроченный токен")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// echoPrincipal пишет в ответ principal из контекста.
func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "нет principal", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(principal))
	})
}

func TestAuth_ValidBearerToken(t *testing.T) {
	mw := Auth(&fakeVerifier{validToken: "good-token", principal: "user-1"}, testLogger())
	handler := mw(echoPrincipal())

	r := httptest.NewRequest(http.MethodGet, "/upload", nil)
	r.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("StatusCode: хотели 200, получили %d", w.Code)
	}
	if body := w.Body.String(); body != "user-1" {
		t.Errorf("Principal: хотели user-1, получили %s", body)
	}
}

func TestAuth_QueryParamFallback(t *testing.T) {
	mw := Auth(&fakeVerifier{validToken: "good-token", principal: "user-1"}, testLogger())
	handler := mw(echoPrincipal())

	// Прямая ссылка скачивания без заголовка Authorization
	r := httptest.NewRequest(http.MethodGet, "/download/f-1?token=good-token", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("StatusCode: хотели 200, получили %d", w.Code)
	}
}

// Заголовок имеет приоритет над query-параметром.
func TestAuth_HeaderTakesPrecedence(t *testing.T) {
	mw := Auth(&fakeVerifier{validToken: "good-token", principal: "user-1"}, testLogger())
	handler := mw(echoPrincipal())

	r := httptest.NewRequest(http.MethodGet, "/download/f-1?token=good-token", nil)
	r.Header.Set("Authorization", "Bearer bad-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("StatusCode: хотели 401, получили %d", w.Code)
	}
}

func TestAuth_Rejections(t *testing.T) {
	mw := Auth(&fakeVerifier{validToken: "good-token", principal: "user-1"}, testLogger())
	handler := mw(echoPrincipal())

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"без токена", func(*http.Request) {}},
		{"невалидный токен", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer bad-token")
		}},
		{"не Bearer схема", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		}},
		{"невалидный query-токен", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "bad-token")
			r.URL.RawQuery = q.Encode()
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/upload", nil)
			tc.setup(r)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, r)

			// Единообразный отказ для любой причины
			if w.Code != http.StatusUnauthorized {
				t.Errorf("StatusCode: хотели 401, получили %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: хотели application/json, получили %s", ct)
			}
		})
	}
}
