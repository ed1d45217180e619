package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/seantiz/partload/internal/catgen"
	"github.com/seantiz/partload/internal/jsonstream"
	"github.com/seantiz/partload/internal/model"
	"github.com/seantiz/partload/internal/source"
)

func TestListSources(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sources")
	if err != nil {
		t.Fatalf("GET /v1/sources: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var infos []source.Info
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("got %d sources, want 3", len(infos))
	}
	if infos[1].Name != "cats" || infos[1].MaxCount == 0 {
		t.Errorf("infos[1] = %+v, want cats with a max count", infos[1])
	}
}

func TestLoadAll(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sources/cats/all?count=50")
	if err != nil {
		t.Fatalf("GET all: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get(model.HeaderState); got != "Full" {
		t.Errorf("%s = %q, want Full", model.HeaderState, got)
	}

	var cats []catgen.Cat
	if err := json.NewDecoder(resp.Body).Decode(&cats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(cats) != 50 {
		t.Fatalf("got %d cats, want 50", len(cats))
	}
	if cats[49].Name != "Cat #50" {
		t.Errorf("last cat = %q, want %q", cats[49].Name, "Cat #50")
	}
}

func TestLoadAllErrors(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown source", "/v1/sources/dogs/all", http.StatusNotFound},
		{"malformed count", "/v1/sources/cats/all?count=lots", http.StatusBadRequest},
		{"count over max", "/v1/sources/cats/all?count=100001", http.StatusBadRequest},
		{"source fault", "/v1/sources/broken/all", http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tc.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tc.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestChunkProtocol(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := ts.URL + "/v1/sources/cats/chunks?count=10&paging=4&timeout=0"
	var sessionID string
	var states []string
	var sizes []int
	var all []catgen.Cat

	for range 10 {
		resp := getWithSession(t, url, sessionID)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		var chunk []catgen.Cat
		err := json.NewDecoder(resp.Body).Decode(&chunk)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode chunk: %v", err)
		}

		state := resp.Header.Get(model.HeaderState)
		states = append(states, state)
		sizes = append(sizes, len(chunk))
		all = append(all, chunk...)

		if state != "Partial" {
			if got := resp.Header.Get(model.HeaderSession); got != "" {
				t.Errorf("session header %q sent with state %s", got, state)
			}
			break
		}
		sessionID = resp.Header.Get(model.HeaderSession)
		if sessionID == "" {
			t.Fatal("Partial response without session header")
		}
	}

	if diff := cmp.Diff([]string{"Partial", "Partial", "Full"}, states); diff != "" {
		t.Fatalf("states mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 4, 2}, sizes); diff != "" {
		t.Errorf("sizes mismatch (-want +got):\n%s", diff)
	}
	for i, cat := range all {
		if want := (catgen.Cat{Name: "Cat #" + strconv.Itoa(i+1)}); cat != want {
			t.Errorf("cat[%d] = %q, want %q", i, cat.Name, want.Name)
		}
	}
}

func TestChunkProtocolErrors(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name    string
		path    string
		session string
		want    int
	}{
		{"unknown session", "/v1/sources/cats/chunks", "01HZZZZZZZZZZZZZZZZZZZZZZZ", http.StatusNotFound},
		{"unknown source", "/v1/sources/dogs/chunks", "", http.StatusNotFound},
		{"malformed paging", "/v1/sources/cats/chunks?paging=some", "", http.StatusBadRequest},
		{"malformed timeout", "/v1/sources/cats/chunks?timeout=soon", "", http.StatusBadRequest},
		{"negative count", "/v1/sources/cats/chunks?count=-1", "", http.StatusBadRequest},
		{"NaN timeout", "/v1/sources/cats/chunks?timeout=NaN", "", http.StatusBadRequest},
		{"infinite timeout", "/v1/sources/cats/chunks?timeout=Inf", "", http.StatusBadRequest},
		{"infinite delay", "/v1/sources/cats/chunks?delay=-Inf", "", http.StatusBadRequest},
		{"overflowing timeout", "/v1/sources/cats/chunks?timeout=1e300", "", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := getWithSession(t, ts.URL+tc.path, tc.session)
			defer resp.Body.Close()

			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestChunkFaulted(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := getWithSession(t, ts.URL+"/v1/sources/broken/chunks?timeout=0&paging=0", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	if got := resp.Header.Get(model.HeaderState); got != "Faulted" {
		t.Errorf("%s = %q, want Faulted", model.HeaderState, got)
	}
	if got := resp.Header.Get(model.HeaderError); got == "" {
		t.Errorf("%s is empty, want the source error", model.HeaderError)
	}
}

func TestJSONChunks(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := ts.URL + "/v1/sources/numbers/json?count=5&paging=3&timeout=0"

	resp := getWithSession(t, url, "")
	items, full, err := jsonstream.ReadAll[int](resp.Body)
	// Trailers arrive once the body is drained.
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read first chunk: %v", err)
	}
	if full {
		t.Error("first chunk carries the terminator")
	}
	if len(items) != 3 || items[0] != 1 || items[2] != 3 {
		t.Errorf("first chunk = %v, want [1 2 3]", items)
	}
	if got := resp.Trailer.Get(model.HeaderState); got != "Partial" {
		t.Errorf("trailer %s = %q, want Partial", model.HeaderState, got)
	}
	sessionID := resp.Trailer.Get(model.HeaderSession)
	if sessionID == "" {
		t.Fatal("Partial stream without session trailer")
	}

	resp = getWithSession(t, url, sessionID)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read second chunk: %v", err)
	}
	if string(body) != "[4,5,null]\n" {
		t.Errorf("second chunk = %q, want %q", body, "[4,5,null]\n")
	}
	if got := resp.Trailer.Get(model.HeaderState); got != "Full" {
		t.Errorf("trailer %s = %q, want Full", model.HeaderState, got)
	}
}

func TestJSONChunksUnknownSession(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := getWithSession(t, ts.URL+"/v1/sources/numbers/json", "missing")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
