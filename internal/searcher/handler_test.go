package searcher

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	executor, _ := testExecutor(t)
	handler := NewHandler(NewCachedSearcher(executor, nil, 0, nil), nil)
	mux := http.NewServeMux()
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHandleSearch(t *testing.T) {
	server := testServer(t)

	resp, err := http.Get(server.URL + "/search?q=alpha+beta")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 || len(result.Results) != 1 {
		t.Fatalf("response = %+v", result)
	}
	if result.Results[0].URL != "https://example.com/1" {
		t.Fatalf("result url = %q", result.Results[0].URL)
	}
}

func TestHandleSearchMissingQuery(t *testing.T) {
	server := testServer(t)

	resp, err := http.Get(server.URL + "/search")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleSearchBadLimit(t *testing.T) {
	server := testServer(t)

	for _, limit := range []string{"abc", "-1"} {
		resp, err := http.Get(server.URL + "/search?q=alpha&limit=" + limit)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("limit %q: status = %d, want 400", limit, resp.StatusCode)
		}
	}
}
