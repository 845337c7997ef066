package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wiregrid.ai/internal/sim/world"
)

func newAdminTestServer(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	w := world.New(world.WorldConfig{ID: "adm", TickRateHz: 100, ConnectRange: 8}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	mux := http.NewServeMux()
	(&adminAPI{world: w}).register(mux)
	mux.HandleFunc("/metrics", metricsSources{worldID: "adm", world: w}.Handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return w, srv
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestAdmin_SpawnUpdateDestroy(t *testing.T) {
	_, srv := newAdminTestServer(t)

	code, out := postJSON(t, srv.URL+"/admin/v1/devices/spawn", `{"kind":"GENERATOR","rate":30,"pos":[1,2]}`)
	if code != http.StatusOK || out["ok"] != true {
		t.Fatalf("spawn: %d %v", code, out)
	}
	id := out["entity_id"].(float64)

	code, out = postJSON(t, srv.URL+"/admin/v1/devices/spawn", `{"kind":"battery","rate":1}`)
	if code != http.StatusBadRequest {
		t.Fatalf("bad kind: %d %v", code, out)
	}

	code, out = postJSON(t, srv.URL+"/admin/v1/devices/update", `{"entity_id":1,"rate":45,"placed":false}`)
	if code != http.StatusOK {
		t.Fatalf("update: %d %v", code, out)
	}

	resp, err := http.Get(srv.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	var st stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	resp.Body.Close()
	if st.WorldID != "adm" || len(st.Entities) != 1 {
		t.Fatalf("state: %+v", st)
	}
	if e := st.Entities[0]; float64(e.ID) != id || e.Rate != 45 || e.Placed {
		t.Fatalf("entity after update: %+v", e)
	}

	resp, err = http.Get(srv.URL + "/admin/v1/invariants")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("invariants: %v %v", resp.StatusCode, err)
	}
	resp.Body.Close()

	code, _ = postJSON(t, srv.URL+"/admin/v1/devices/destroy", `{"entity_id":1}`)
	if code != http.StatusOK {
		t.Fatalf("destroy: %d", code)
	}
	code, out = postJSON(t, srv.URL+"/admin/v1/devices/destroy", `{"entity_id":1}`)
	if code != http.StatusConflict || out["code"] != "E_NOT_FOUND" {
		t.Fatalf("second destroy: %d %v", code, out)
	}
}

func TestAdmin_RejectsRemoteAndWrongMethod(t *testing.T) {
	w := world.New(world.WorldConfig{ID: "adm"}, nil)
	mux := http.NewServeMux()
	(&adminAPI{world: w}).register(mux)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote: got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET snapshot: got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/stats/latest", nil)
	req.RemoteAddr = "[::1]:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("stats without index: got %d", rec.Code)
	}
}

func TestMetricsExposition(t *testing.T) {
	_, srv := newAdminTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{
		"# TYPE wiregrid_world_tick gauge",
		`wiregrid_grid_objects{world="adm",kind="circuits"}`,
		`wiregrid_world_queue_depth{world="adm",queue="admin"}`,
	} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("metrics missing %q:\n%s", want, buf.String())
		}
	}
	if strings.Contains(buf.String(), "wiregrid_index_") {
		t.Fatalf("index metrics without an index")
	}
}
