package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"wiregrid.ai/internal/sim/power/model"
	"wiregrid.ai/internal/sim/world"
)

const adminTimeout = 5 * time.Second

// adminAPI exposes loopback-only debug and control endpoints. Every world
// access goes through Submit so it runs on the world goroutine.
type adminAPI struct {
	world *world.World
	idx   runtimeIndex
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", a.loopback(http.MethodGet, a.handleState))
	mux.HandleFunc("/admin/v1/invariants", a.loopback(http.MethodGet, a.handleInvariants))
	mux.HandleFunc("/admin/v1/snapshot", a.loopback(http.MethodPost, a.handleSnapshot))
	mux.HandleFunc("/admin/v1/devices/spawn", a.loopback(http.MethodPost, a.handleSpawn))
	mux.HandleFunc("/admin/v1/devices/destroy", a.loopback(http.MethodPost, a.handleDestroy))
	mux.HandleFunc("/admin/v1/devices/update", a.loopback(http.MethodPost, a.handleUpdate))
	mux.HandleFunc("/admin/v1/circuits/history", a.loopback(http.MethodGet, a.handleHistory))
	mux.HandleFunc("/admin/v1/stats/latest", a.loopback(http.MethodGet, a.handleLatestStats))
}

func (a *adminAPI) loopback(method string, h func(ctx context.Context, r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
		defer cancel()
		resp, status, err := h(ctx, r)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			if status == 0 {
				status = http.StatusServiceUnavailable
			}
			rw.WriteHeader(status)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "code": world.CodeFor(err), "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

type stateResponse struct {
	WorldID  string              `json:"world_id"`
	Tick     uint64              `json:"tick"`
	Metrics  world.WorldMetrics  `json:"metrics"`
	Entities []world.Entity      `json:"entities"`
	Circuits []model.CircuitView `json:"circuits"`
}

func (a *adminAPI) handleState(ctx context.Context, _ *http.Request) (any, int, error) {
	var resp stateResponse
	err := a.world.Submit(ctx, func(w *world.World) error {
		resp = stateResponse{
			WorldID:  w.ID(),
			Tick:     w.CurrentTick(),
			Entities: w.Entities(),
			Circuits: w.Grid().AllCircuits(),
		}
		return nil
	})
	resp.Metrics = a.world.Metrics()
	return resp, 0, err
}

func (a *adminAPI) handleInvariants(ctx context.Context, _ *http.Request) (any, int, error) {
	var check error
	err := a.world.Submit(ctx, func(w *world.World) error {
		check = w.Grid().CheckInvariants()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if check != nil {
		return nil, http.StatusInternalServerError, check
	}
	return map[string]any{"ok": true}, 0, nil
}

func (a *adminAPI) handleSnapshot(ctx context.Context, _ *http.Request) (any, int, error) {
	tick, err := a.world.RequestSnapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	return map[string]any{"ok": true, "tick": tick}, 0, nil
}

type spawnRequest struct {
	Kind   string     `json:"kind"`
	Rate   int64      `json:"rate"`
	Pos    [2]float64 `json:"pos"`
	Placed *bool      `json:"placed"`
}

func (a *adminAPI) handleSpawn(ctx context.Context, r *http.Request) (any, int, error) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, http.StatusBadRequest, err
	}
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	placed := req.Placed == nil || *req.Placed
	var id model.EntityID
	err = a.world.Submit(ctx, func(w *world.World) error {
		var err error
		id, err = w.SpawnDevice(kind, req.Rate, mgl64.Vec2{req.Pos[0], req.Pos[1]}, placed)
		return err
	})
	if err != nil {
		return nil, http.StatusConflict, err
	}
	return map[string]any{"ok": true, "entity_id": uint64(id)}, 0, nil
}

type entityRequest struct {
	EntityID uint64 `json:"entity_id"`
	Rate     *int64 `json:"rate,omitempty"`
	Placed   *bool  `json:"placed,omitempty"`
}

func (a *adminAPI) handleDestroy(ctx context.Context, r *http.Request) (any, int, error) {
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, http.StatusBadRequest, err
	}
	err := a.world.Submit(ctx, func(w *world.World) error {
		return w.DestroyEntity(model.EntityID(req.EntityID))
	})
	if err != nil {
		return nil, http.StatusConflict, err
	}
	return map[string]any{"ok": true}, 0, nil
}

// handleUpdate changes the rate and/or placed flag of an existing device.
func (a *adminAPI) handleUpdate(ctx context.Context, r *http.Request) (any, int, error) {
	var req entityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, http.StatusBadRequest, err
	}
	if req.Rate == nil && req.Placed == nil {
		return nil, http.StatusBadRequest, errors.New("nothing to update")
	}
	id := model.EntityID(req.EntityID)
	err := a.world.Submit(ctx, func(w *world.World) error {
		if req.Rate != nil {
			if err := w.SetRate(id, *req.Rate); err != nil {
				return err
			}
		}
		if req.Placed != nil {
			return w.SetPlaced(id, *req.Placed)
		}
		return nil
	})
	if err != nil {
		return nil, http.StatusConflict, err
	}
	return map[string]any{"ok": true}, 0, nil
}

func (a *adminAPI) handleHistory(ctx context.Context, r *http.Request) (any, int, error) {
	if a.idx == nil {
		return nil, http.StatusNotFound, errors.New("index disabled")
	}
	circuit, err := strconv.ParseUint(r.URL.Query().Get("circuit"), 10, 64)
	if err != nil || circuit == 0 {
		return nil, http.StatusBadRequest, errors.New("circuit must be a positive integer")
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := a.idx.CircuitHistory(ctx, circuit, limit)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return map[string]any{"circuit_id": circuit, "events": rows}, 0, nil
}

func (a *adminAPI) handleLatestStats(ctx context.Context, _ *http.Request) (any, int, error) {
	if a.idx == nil {
		return nil, http.StatusNotFound, errors.New("index disabled")
	}
	tick, stats, err := a.idx.LatestStats(ctx)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return map[string]any{"tick": tick, "circuits": stats}, 0, nil
}
