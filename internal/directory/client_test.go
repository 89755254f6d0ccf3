package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientLookupFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/residents/lookup" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("full_name"); got != "Иван Петров" {
			t.Errorf("full_name = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"account_number":"40817001","full_name":"Иван Петров","apartment":"12","address":"Ленина 5"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	r, err := c.Lookup(context.Background(), "Иван Петров", "Ленина 5, кв. 12")
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.AccountNumber != "40817001" {
		t.Errorf("unexpected resident: %+v", r)
	}
}

func TestClientLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r, err := NewClient(srv.URL).Lookup(context.Background(), "Никто Такой", "нигде")
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if r != nil {
		t.Errorf("expected nil resident, got %+v", r)
	}
}

func TestClientLookupServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Lookup(context.Background(), "a", "b"); err == nil {
		t.Error("500 must surface as an error")
	}
}

func TestClientLookupEmptyAccountMeansNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"account_number":""}`))
	}))
	defer srv.Close()

	r, err := NewClient(srv.URL).Lookup(context.Background(), "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Errorf("record without account number must be a non-match, got %+v", r)
	}
}
