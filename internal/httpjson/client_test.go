package httpjson_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alovak/webpay-playground/internal/httpjson"
)

func serve(t *testing.T, contentType string, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestGet(t *testing.T) {
	ts := serve(t, "application/json; charset=utf-8", http.StatusOK, `{"messageType":"authority"}`)

	raw, err := httpjson.New(time.Second).Get(context.Background(), ts.URL)
	require.NoError(t, err)
	require.JSONEq(t, `{"messageType":"authority"}`, string(raw))
}

func TestPostSendsJSONContentType(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(ts.Close)

	_, err := httpjson.New(time.Second).Post(context.Background(), ts.URL, []byte(`{"a":1}`))
	require.NoError(t, err)
	require.Equal(t, "application/json", got)
}

func TestRejectsWrongContentType(t *testing.T) {
	ts := serve(t, "text/html", http.StatusOK, `{"messageType":"authority"}`)

	_, err := httpjson.New(time.Second).Get(context.Background(), ts.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "application/json")
}

func TestAcceptsAny2xx(t *testing.T) {
	ts := serve(t, "application/json", http.StatusCreated, `{"id":"s1"}`)

	raw, err := httpjson.New(time.Second).Get(context.Background(), ts.URL)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"s1"}`, string(raw))
}

func TestRejectsNonOKStatus(t *testing.T) {
	ts := serve(t, "application/json", http.StatusBadGateway, `{}`)

	_, err := httpjson.New(time.Second).Get(context.Background(), ts.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=502")
}

func TestRejectsNonObjectBody(t *testing.T) {
	for name, body := range map[string]string{
		"array":      `[1,2,3]`,
		"scalar":     `"hello"`,
		"two values": `{"a":1} {"b":2}`,
		"not json":   `<html></html>`,
	} {
		body := body
		t.Run(name, func(t *testing.T) {
			ts := serve(t, "application/json", http.StatusOK, body)
			_, err := httpjson.New(time.Second).Get(context.Background(), ts.URL)
			require.Error(t, err)
		})
	}
}
