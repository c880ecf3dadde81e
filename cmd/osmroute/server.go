package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"runtime"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tijuhasz/osm/graph"
	"github.com/tijuhasz/osm/routing"
)

// Server holds the graph and router for handling requests
type Server struct {
	store  *graph.Store
	router *routing.Router
	finder *routing.CandidateFinder
	logger *slog.Logger
}

func NewServer(store *graph.Store, router *routing.Router, finder *routing.CandidateFinder, logger *slog.Logger) *Server {
	return &Server{store: store, router: router, finder: finder, logger: logger}
}

// Handler registers all endpoints on a new mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/poi", s.handlePOI)
	mux.HandleFunc("/intersection", s.handleIntersection)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

// RuntimeMetrics holds memory, goroutine and graph statistics
type RuntimeMetrics struct {
	Goroutines   int     `json:"goroutines"`
	AllocMB      float64 `json:"alloc_mb"`       // currently allocated heap
	TotalAllocMB float64 `json:"total_alloc_mb"` // cumulative allocated (includes freed)
	SysMB        float64 `json:"sys_mb"`         // total memory from OS
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	HeapSysMB    float64 `json:"heap_sys_mb"`
	HeapObjects  uint64  `json:"heap_objects"`
	NumGC        uint32  `json:"num_gc"`
	Nodes        int     `json:"nodes"`
	Edges        int     `json:"edges"`
	Ways         int     `json:"ways"`
}

// getRuntimeMetrics collects current runtime statistics
func (s *Server) getRuntimeMetrics() RuntimeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var st graph.Stats
	_ = s.store.View(func(tx *graph.Tx) error {
		st = tx.Stats()
		return nil
	})

	return RuntimeMetrics{
		Goroutines:   runtime.NumGoroutine(),
		AllocMB:      float64(m.Alloc) / 1024 / 1024,
		TotalAllocMB: float64(m.TotalAlloc) / 1024 / 1024,
		SysMB:        float64(m.Sys) / 1024 / 1024,
		HeapAllocMB:  float64(m.HeapAlloc) / 1024 / 1024,
		HeapSysMB:    float64(m.HeapSys) / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
		NumGC:        m.NumGC,
		Nodes:        st.Nodes,
		Edges:        st.Edges,
		Ways:         st.Ways,
	}
}

// startMetricsLogger logs metrics periodically until ctx is done
func (s *Server) startMetricsLogger(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m := s.getRuntimeMetrics()
				s.logger.Info("metrics",
					"goroutines", m.Goroutines,
					"alloc_mb", m.AllocMB,
					"sys_mb", m.SysMB,
					"heap_objects", m.HeapObjects,
					"gc_cycles", m.NumGC,
					"nodes", m.Nodes,
					"edges", m.Edges)
			}
		}
	}()
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.getRuntimeMetrics())
}

// randomColor generates a random hex color string
func randomColor() string {
	const letters = "0123456789ABCDEF"
	b := make([]byte, 7)
	b[0] = '#'
	for i := 1; i < 7; i++ {
		b[i] = letters[rand.Intn(16)]
	}
	return string(b)
}

// statusFor maps routing failures to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, routing.ErrDegenerateGeometry):
		return http.StatusBadRequest
	case errors.Is(err, routing.ErrNoClosestWay):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// wayIDs reads the optional "ways" property of a POI feature.
func wayIDs(props geojson.Properties) ([]graph.WayID, bool) {
	raw, ok := props["ways"].([]interface{})
	if !ok {
		return nil, false
	}
	ids := make([]graph.WayID, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		ids = append(ids, graph.WayID(f))
	}
	return ids, true
}

// handlePOI stores a point of interest and connects it to the closest way
func (s *Server) handlePOI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	feature, err := geojson.UnmarshalFeature(body)
	if err != nil {
		http.Error(w, "Invalid GeoJSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	p, ok := feature.Geometry.(orb.Point)
	if !ok {
		http.Error(w, "Feature geometry must be a Point", http.StatusBadRequest)
		return
	}
	ways, explicit := wayIDs(feature.Properties)

	var (
		poi    graph.NodeID
		result *routing.PointRouteResult
	)
	err = s.store.Update(func(tx *graph.Tx) error {
		var err error
		poi, err = tx.CreateLocatedNode(p, graph.LabelPointOfInterest)
		if err != nil {
			return err
		}
		if !explicit {
			ways, err = s.finder.Find(tx, p, s.router.Calculator())
			if err != nil {
				return err
			}
		}
		result, err = s.router.RoutePointOfInterest(tx, poi, ways)
		return err
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	loc := result.Location
	out := geojson.NewFeature(loc.Point)
	out.ID = int64(result.Node)
	out.Properties = geojson.Properties{
		"poi":      int64(poi),
		"node":     int64(result.Node),
		"kind":     loc.Kind.String(),
		"way":      loc.Way.Name,
		"way_id":   int64(loc.Way.ID),
		"distance": loc.Distance,
	}
	s.writeJSON(w, out)
}

// IntersectionRequest selects the node and the write options for /intersection.
type IntersectionRequest struct {
	Node                 int64 `json:"node"`
	DeleteExistingRoutes bool  `json:"delete_existing_routes"`
	CreateNewRoutes      bool  `json:"create_new_routes"`
	AddLabels            bool  `json:"add_labels"`
}

// handleIntersection finds the routes from a node to its neighboring intersections
func (s *Server) handleIntersection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var req IntersectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	fc := geojson.NewFeatureCollection()
	err := s.store.Update(func(tx *graph.Tx) error {
		res, err := s.router.RouteIntersection(tx, graph.NodeID(req.Node), routing.IntersectionOptions{
			DeleteExistingRoutes: req.DeleteExistingRoutes,
			CreateNewRoutes:      req.CreateNewRoutes,
			AddLabels:            req.AddLabels,
		})
		if err != nil {
			return err
		}
		for _, route := range res.Routes {
			f, err := routeFeature(tx, route, false)
			if err != nil {
				return err
			}
			fc.Append(f)
		}
		for _, route := range res.Covered {
			f, err := routeFeature(tx, route, true)
			if err != nil {
				return err
			}
			fc.Append(f)
		}
		fc.ExtraMembers = geojson.Properties{"unresolved": len(res.Unresolved)}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.logger.Info("routed intersection", "node", req.Node, "features", len(fc.Features))
	s.writeJSON(w, fc)
}

func routeFeature(tx *graph.Tx, route routing.IntersectionRoute, covered bool) (*geojson.Feature, error) {
	line := make(orb.LineString, 0, 2)
	for _, id := range []graph.NodeID{route.FromNode, route.ToNode} {
		n, err := tx.Node(id)
		if err != nil {
			return nil, err
		}
		if n.Location == nil {
			return nil, routing.ErrDegenerateGeometry
		}
		line = append(line, *n.Location)
	}
	f := geojson.NewFeature(line)
	f.Properties = geojson.Properties{
		"from":     int64(route.FromNode),
		"to":       int64(route.ToNode),
		"from_rel": int64(route.FromRel.ID),
		"way_node": int64(route.WayNode),
		"to_rel":   int64(route.ToRel.ID),
		"distance": route.Distance,
		"length":   route.Length,
		"count":    route.Count,
		"segments": route.Segments,
		"covered":  covered,
		"stroke":   randomColor(),
	}
	if route.Edge != 0 {
		f.Properties["edge"] = int64(route.Edge)
	}
	return f, nil
}
