package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seantiz/partload/internal/engine"
	"github.com/seantiz/partload/internal/model"
)

// startPartial starts a numbers session that stays Partial after its first call.
func startPartial(t *testing.T, baseURL string) string {
	t.Helper()
	resp := getWithSession(t, baseURL+"/v1/sources/numbers/chunks?count=10&paging=2&timeout=0", "")
	defer resp.Body.Close()

	if got := resp.Header.Get(model.HeaderState); got != "Partial" {
		t.Fatalf("%s = %q, want Partial", model.HeaderState, got)
	}
	id := resp.Header.Get(model.HeaderSession)
	if id == "" {
		t.Fatal("missing session header")
	}
	return id
}

func deleteSession(t *testing.T, url string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodDelete, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	return resp
}

func TestListAndGetSessions(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := startPartial(t, ts.URL)

	resp, err := http.Get(ts.URL + "/v1/sessions?limit=500")
	if err != nil {
		t.Fatalf("GET /v1/sessions: %v", err)
	}
	var list listSessionsResponse
	err = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || len(list.Sessions) != 1 {
		t.Fatalf("list = %+v, want one session", list)
	}
	if list.Limit != defaultListLimit {
		t.Errorf("limit = %d, want %d", list.Limit, defaultListLimit)
	}

	resp, err = http.Get(ts.URL + "/v1/sessions/" + id)
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	var sess model.Session
	err = json.NewDecoder(resp.Body).Decode(&sess)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.ID != id || sess.State != model.StatePartial || sess.Items != 2 || sess.Paging != 2 {
		t.Errorf("session = %+v, want partial with 2 items", sess)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/v1/sessions/nonexistent", "/v1/sessions/nonexistent/chunks", "/v1/sessions/nonexistent/events"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestGetChunks(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := startPartial(t, ts.URL)
	resp := getWithSession(t, ts.URL+"/v1/sources/numbers/chunks", id)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/v1/sessions/" + id + "/chunks")
	if err != nil {
		t.Fatalf("GET chunks: %v", err)
	}
	defer resp.Body.Close()

	var body chunksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode chunks: %v", err)
	}
	if body.SessionID != id || len(body.Chunks) != 2 {
		t.Fatalf("chunks = %+v, want 2 chunks for %s", body, id)
	}
	if body.Chunks[1].Seq != 2 || body.Chunks[1].Size != 2 {
		t.Errorf("second chunk = %+v, want seq 2 size 2", body.Chunks[1])
	}
}

func TestCancelSession(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := startPartial(t, ts.URL)

	resp := deleteSession(t, ts.URL+"/v1/sessions/"+id)
	var sess model.Session
	err := json.NewDecoder(resp.Body).Decode(&sess)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get(model.HeaderState); got != "Canceled" {
		t.Errorf("%s = %q, want Canceled", model.HeaderState, got)
	}
	if sess.State != model.StateCanceled {
		t.Errorf("state = %q, want %q", sess.State, model.StateCanceled)
	}

	resp = deleteSession(t, ts.URL+"/v1/sessions/"+id)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second DELETE status = %d, want 409", resp.StatusCode)
	}

	resp = getWithSession(t, ts.URL+"/v1/sources/numbers/chunks", id)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("continue after cancel status = %d, want 404", resp.StatusCode)
	}

	resp = deleteSession(t, ts.URL+"/v1/sessions/nonexistent")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("DELETE unknown status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamEventsFinishedSession(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := getWithSession(t, ts.URL+"/v1/sources/numbers/chunks?count=3", "")
	resp.Body.Close()

	sessions, _, err := srv.store.ListSessions(t.Context(), 1, 0)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("ListSessions = %v, %v", sessions, err)
	}

	resp, err = http.Get(ts.URL + "/v1/sessions/" + sessions[0].ID + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	scanner := bufio.NewScanner(resp.Body)
	if scanner.Scan() {
		t.Errorf("unexpected event line %q for finished session", scanner.Text())
	}
}

func TestStreamEventsLiveSession(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := startPartial(t, ts.URL)

	resp, err := http.Get(ts.URL + "/v1/sessions/" + id + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	// The subscription is in place once the headers arrived.
	for {
		r := getWithSession(t, ts.URL+"/v1/sources/numbers/chunks", id)
		r.Body.Close()
		if r.Header.Get(model.HeaderState) != "Partial" {
			break
		}
	}

	var calls []engine.Event
	var done bool
	var event string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "call":
			var ev engine.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatalf("decode event %q: %v", line, err)
			}
			calls = append(calls, ev)
		case strings.HasPrefix(line, "data: ") && event == "done":
			done = true
		}
	}

	if !done {
		t.Error("stream ended without done event")
	}
	if len(calls) != 4 {
		t.Fatalf("got %d call events, want 4", len(calls))
	}
	if calls[0].Seq != 2 || calls[3].State != model.StateFull {
		t.Errorf("events = %+v, want seq 2..5 ending full", calls)
	}
}

func TestGetStats(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	startPartial(t, ts.URL)
	resp := getWithSession(t, ts.URL+"/v1/sources/numbers/chunks?count=7", "")
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET /v1/stats: %v", err)
	}
	defer resp.Body.Close()

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 2 || stats.Active != 1 || stats.Items != 9 || stats.Calls != 2 {
		t.Errorf("stats = %+v, want total 2, active 1, items 9, calls 2", stats)
	}
	if stats.ByState[model.StateFull] != 1 || stats.ByState[model.StatePartial] != 1 {
		t.Errorf("by_state = %v, want one full and one partial", stats.ByState)
	}
}
