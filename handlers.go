package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kwv/fastslam/slam"
	"github.com/tdewolff/canvas"
)

type poseResponse struct {
	Pose       slam.Pose       `json:"pose"`
	Weight     float64         `json:"weight"`
	Correction slam.Pose       `json:"correction"`
	Stats      slam.CycleStats `json:"stats"`
}

type trajectoryResponse struct {
	Estimate  []slam.TrajectoryPoint `json:"estimate"`
	Reference []slam.Pose            `json:"reference"`
	Neff      []float64              `json:"neff"`
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(state *slam.StateTracker, config *slam.Config, session string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, hasEstimate := state.Estimate()
		status := struct {
			Status      string    `json:"status"`
			Session     string    `json:"session"`
			Timestamp   time.Time `json:"timestamp"`
			Cycles      int       `json:"cycles"`
			HasEstimate bool      `json:"hasEstimate"`
		}{
			Status:      "ok",
			Session:     session,
			Timestamp:   time.Now(),
			Cycles:      state.Stats().Cycle,
			HasEstimate: hasEstimate,
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/pose", func(w http.ResponseWriter, r *http.Request) {
		est, ok := state.Estimate()
		if !ok {
			http.Error(w, "No estimate yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, poseResponse{
			Pose:       est.Pose,
			Weight:     est.Weight,
			Correction: est.Correction,
			Stats:      state.Stats(),
		})
	})

	mux.HandleFunc("/trajectory", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, trajectoryResponse{
			Estimate:  state.Trajectory(),
			Reference: state.GroundTruth(),
			Neff:      state.NeffHistory(),
		})
	})

	mux.HandleFunc("/map.png", func(w http.ResponseWriter, r *http.Request) {
		grid := state.Map()
		if grid == nil {
			http.Error(w, "No map available", http.StatusServiceUnavailable)
			return
		}
		est, _ := state.Estimate()

		renderer := slam.NewMapRenderer(grid)
		renderer.Scale = config.Render.Scale
		renderer.Trajectory = state.TrajectoryPoses()
		renderer.GroundTruth = state.GroundTruth()
		renderer.Pose = &est.Pose
		renderer.Legend = r.URL.Query().Get("legend") != "false"

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.EncodePNG(w); err != nil {
			slam.Logf("[HTTP] Error encoding map PNG: %v", err)
		}
	})

	vector := func(w http.ResponseWriter) (*slam.VectorRenderer, bool) {
		grid := state.Map()
		if grid == nil {
			http.Error(w, "No map available", http.StatusServiceUnavailable)
			return nil, false
		}
		est, _ := state.Estimate()
		renderer := slam.NewVectorRenderer(grid)
		renderer.Trajectory = state.TrajectoryPoses()
		renderer.GroundTruth = state.GroundTruth()
		renderer.Pose = &est.Pose
		return renderer, true
	}

	mux.HandleFunc("/map.svg", func(w http.ResponseWriter, r *http.Request) {
		renderer, ok := vector(w)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			slam.Logf("[HTTP] Error encoding map SVG: %v", err)
		}
	})

	mux.HandleFunc("/map-vector.png", func(w http.ResponseWriter, r *http.Request) {
		renderer, ok := vector(w)
		if !ok {
			return
		}
		if config.Render.VectorResolution > 0 {
			renderer.Resolution = canvas.DPI(config.Render.VectorResolution)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToPNG(w); err != nil {
			slam.Logf("[HTTP] Error encoding vector map PNG: %v", err)
		}
	})

	mux.HandleFunc("/map.geojson", func(w http.ResponseWriter, r *http.Request) {
		grid := state.Map()
		if grid == nil {
			http.Error(w, "No map available", http.StatusServiceUnavailable)
			return
		}
		est, _ := state.Estimate()
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		err := slam.WriteGeoJSON(w, slam.GeoJSONExport{
			Grid:        grid,
			Trajectory:  state.TrajectoryPoses(),
			GroundTruth: state.GroundTruth(),
			Pose:        &est.Pose,
			Tolerance:   geoJSONTolerance,
		})
		if err != nil {
			slam.Logf("[HTTP] Error encoding map GeoJSON: %v", err)
		}
	})

	return logRequests(mux)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slam.Logf("[HTTP] Error encoding JSON: %v", err)
	}
}

// logRequests logs every request with its duration
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slam.Logf("[HTTP] %s %s from %s (%v)", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start).Round(time.Microsecond))
	})
}
