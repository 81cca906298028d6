package milvus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

func TestSearchBuildsFilterAndMapsHits(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/vectordb/entities/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"code":0,"data":[
			{"id":34891234,"distance":0.91,"text_chunk":"antigen loss","year":2021,"target_antigen":"CD19"},
			{"id":"rec-2","distance":0.30,"text_summary":"below threshold"}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	hits, err := client.Search(context.Background(), "cart_literature", []float32{0.1, 0.2}, 5,
		domain.CollectionFilter{TargetAntigen: "CD19", YearField: "year", YearMin: 2020}, 0.4)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotBody["collectionName"] != "cart_literature" {
		t.Errorf("collectionName = %v", gotBody["collectionName"])
	}
	filter, _ := gotBody["filter"].(string)
	if filter != `target_antigen == "CD19" and year >= 2020` {
		t.Errorf("filter = %q", filter)
	}

	// The 0.30 hit sits below the threshold and is dropped client-side.
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	hit := hits[0]
	if hit.ID != "34891234" {
		t.Errorf("numeric primary key not stringified: %q", hit.ID)
	}
	if hit.Score != 0.91 {
		t.Errorf("score = %v", hit.Score)
	}
	if hit.Text != "antigen loss" {
		t.Errorf("text = %q", hit.Text)
	}
	if hit.Attributes["target_antigen"] != "CD19" {
		t.Errorf("attributes = %v", hit.Attributes)
	}
	if _, ok := hit.Attributes["distance"]; ok {
		t.Error("distance must not leak into attributes")
	}
}

func TestSearchOmitsFilterWhenEmpty(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"code":0,"data":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	if _, err := client.Search(context.Background(), "cart_assays", []float32{0.1}, 3, domain.CollectionFilter{}, 0); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, ok := gotBody["filter"]; ok {
		t.Errorf("empty filter must be omitted, got %v", gotBody["filter"])
	}
}

func TestSearchServerErrorsSurface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "")
	_, err := client.Search(context.Background(), "cart_trials", []float32{0.1}, 3, domain.CollectionFilter{}, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "collection not loaded") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestSearchNonZeroServerCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":1100,"data":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	_, err := client.Search(context.Background(), "cart_trials", []float32{0.1}, 3, domain.CollectionFilter{}, 0)
	if err == nil || !strings.Contains(err.Error(), "1100") {
		t.Fatalf("expected server code error, got %v", err)
	}
}

func TestCollectionRowCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/vectordb/collections/get_stats" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"rowCount":12847}}`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	n, err := client.CollectionRowCount(context.Background(), "cart_literature")
	if err != nil {
		t.Fatalf("CollectionRowCount() error = %v", err)
	}
	if n != 12847 {
		t.Fatalf("row count = %d", n)
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"code":0,"data":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "root:Milvus")
	if _, err := client.Search(context.Background(), "cart_trials", []float32{0.1}, 1, domain.CollectionFilter{}, 0); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotAuth != "Bearer root:Milvus" {
		t.Fatalf("authorization = %q", gotAuth)
	}
}
