package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/storeguard/internal/core/domain"
	"github.com/vietddude/storeguard/internal/infra/client/errs"
)

func TestHTTP_GetWithQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/api/stores" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "coffee" {
			t.Errorf("q = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth = %q", got)
		}
		w.Write([]byte(`[{"id":1}]`))
	}))
	defer server.Close()

	h := NewHTTP(server.URL+"/api/", time.Second)
	h.SetToken("tok")
	resp, err := h.Execute(context.Background(), &domain.Request{
		Endpoint: "/stores",
		Params:   map[string]string{"q": "coffee"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.StatusCode != 200 || string(resp.Body) != `[{"id":1}]` {
		t.Errorf("resp = %d %s", resp.StatusCode, resp.Body)
	}
	if h.Health().LastSuccessAt.IsZero() {
		t.Error("success not recorded")
	}
}

func TestHTTP_PostJSONParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var got map[string]string
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &got); err != nil {
			t.Errorf("body %s: %v", data, err)
		}
		if got["rating"] != "5" {
			t.Errorf("body = %v", got)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	h := NewHTTP(server.URL, time.Second)
	resp, err := h.Execute(context.Background(), &domain.Request{
		Endpoint: "ratings",
		Method:   http.MethodPost,
		Params:   map[string]string{"rating": "5"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHTTP_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"rating must be 1-5"}`))
	}))
	defer server.Close()

	h := NewHTTP(server.URL, time.Second)
	_, err := h.Execute(context.Background(), &domain.Request{Endpoint: "/ratings", Method: http.MethodPost})

	var se *errs.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("err = %v, want 422 StatusError", err)
	}
	ne := errs.Normalize(err)
	if ne.Kind != errs.KindValidation || ne.Message != "rating must be 1-5" {
		t.Errorf("normalized = %+v", ne)
	}
	if h.Health().ErrorRate != 1 {
		t.Errorf("error rate = %v", h.Health().ErrorRate)
	}
}

func TestHTTP_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	h := NewHTTP(server.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Execute(ctx, &domain.Request{Endpoint: "/slow"})
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := errs.Normalize(err).Kind; kind != errs.KindNetwork {
		t.Errorf("kind = %s, want network_error", kind)
	}
}
