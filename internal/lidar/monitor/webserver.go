package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pointcloud.live/internal/lidar/vlp16"
	"github.com/banshee-data/pointcloud.live/internal/monitoring"
	"github.com/banshee-data/pointcloud.live/internal/version"
)

// CloudSource is the point cloud history consumed by the HTTP layer. The
// rotation buffer satisfies this.
type CloudSource interface {
	Snapshot() ([]vlp16.Point3D, []float64)
	Clear()
	Len() int
	Capacity() int
	Rotations() uint64
}

// RangeSummary describes the distribution of scaled ranges in a snapshot.
// The external visualiser uses Min/Max to normalise its color map; the core
// itself does no color mapping.
type RangeSummary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// cloudResponse is the JSON shape of /api/cloud. Points[i] pairs with
// Ranges[i].
type cloudResponse struct {
	Points    [][3]float64  `json:"points"`
	Ranges    []float64     `json:"ranges"`
	Summary   *RangeSummary `json:"summary,omitempty"`
	Rotations uint64        `json:"rotations"`
	Batches   int           `json:"batches"`
	Capacity  int           `json:"capacity"`
}

// WebServer exposes ingest statistics, the current point cloud snapshot and
// the reset trigger over HTTP.
type WebServer struct {
	address string
	stats   *PacketStats
	cloud   CloudSource
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Stats   *PacketStats
	Cloud   CloudSource
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		stats:   config.Stats,
		cloud:   config.Cloud,
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.Routes(),
	}
	return ws
}

// Routes builds the HTTP handler. Exposed separately so tests can drive the
// mux without binding a socket.
func (ws *WebServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", ws.handleHealth)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/cloud", ws.handleCloud)
	mux.HandleFunc("/api/cloud/clear", ws.handleClear)
	return mux
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		return ws.server.Close()
	}
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "ok",
		"service": "vlp16d",
		"version": version.String(),
	})
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, ws.stats.LatestSnapshot())
}

// handleCloud serves the concatenated snapshot of all retained rotations.
// Response arrays are parallel: points[i] pairs with ranges[i].
func (ws *WebServer) handleCloud(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	points, ranges := ws.cloud.Snapshot()

	resp := cloudResponse{
		Points:    make([][3]float64, len(points)),
		Ranges:    ranges,
		Rotations: ws.cloud.Rotations(),
		Batches:   ws.cloud.Len(),
		Capacity:  ws.cloud.Capacity(),
	}
	for i, p := range points {
		resp.Points[i] = [3]float64{p.X, p.Y, p.Z}
	}
	if len(ranges) > 0 {
		summary := &RangeSummary{
			Min:  floats.Min(ranges),
			Max:  floats.Max(ranges),
			Mean: stat.Mean(ranges, nil),
		}
		// Sample standard deviation is undefined for a single value, and
		// NaN is not representable in JSON.
		if len(ranges) > 1 {
			summary.StdDev = stat.StdDev(ranges, nil)
		}
		resp.Summary = summary
	}

	writeJSON(w, resp)
}

// handleClear is the external reset trigger: it empties the rotation history.
func (ws *WebServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ws.cloud.Clear()
	monitoring.Logf("Point cloud history flushed via %s", r.RemoteAddr)
	writeJSON(w, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("Failed to encode JSON response: %v", err)
	}
}
