package main

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PhilipZhang0907/smart-garment/mesh"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *mesh.StateTracker, cal *mesh.CalibrationTable) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		processed, rejected, dropped := stateTracker.Counters()
		status := struct {
			Status      string    `json:"status"`
			Timestamp   time.Time `json:"timestamp"`
			Mode        mesh.Mode `json:"mode,omitempty"`
			Vertices    int       `json:"vertices"`
			HasFrame    bool      `json:"hasFrame"`
			Processed   uint64    `json:"processed"`
			Rejected    uint64    `json:"rejected"`
			Dropped     uint64    `json:"dropped"`
			Subscribers int       `json:"subscribers"`
		}{
			Status:      "ok",
			Timestamp:   time.Now(),
			Vertices:    stateTracker.Mapping().Len(),
			HasFrame:    stateTracker.Latest() != nil,
			Processed:   processed,
			Rejected:    rejected,
			Dropped:     dropped,
			Subscribers: stateTracker.SubscriberCount(),
		}
		if cal != nil {
			status.Mode = cal.Mode
		}
		writeJSONResponse(w, status)
	})

	// Latest per-vertex scalars
	mux.HandleFunc("/scalars", func(w http.ResponseWriter, r *http.Request) {
		res := stateTracker.Latest()
		if res == nil {
			http.Error(w, "No frame assembled yet", http.StatusServiceUnavailable)
			return
		}
		writeJSONResponse(w, res)
	})

	// Vertex mapping with projection diagnostics
	mux.HandleFunc("/mapping", func(w http.ResponseWriter, r *http.Request) {
		table := stateTracker.Mapping()
		if table == nil {
			http.Error(w, "No mesh loaded", http.StatusServiceUnavailable)
			return
		}
		writeJSONResponse(w, struct {
			Stats mesh.ProjectionStats `json:"stats"`
			*mesh.MappingTable
		}{stateTracker.Stats(), table})
	})

	// Last received pressure grids
	for _, name := range []mesh.GridName{mesh.GridCloths, mesh.GridPants} {
		mux.HandleFunc(fmt.Sprintf("/grid/%s.png", name), func(w http.ResponseWriter, r *http.Request) {
			g := stateTracker.Grid(name)
			if g == nil {
				http.Error(w, "No frame received yet", http.StatusServiceUnavailable)
				return
			}
			img := mesh.RenderGrid(g, mesh.GridCellSize, fmt.Sprintf("%s %dx%d", name, g.Rows, g.Cols))
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-cache")
			if err := png.Encode(w, img); err != nil {
				log.Printf("[HTTP] error encoding %s grid PNG: %v", name, err)
			}
		})
	}

	// Body preview, raster
	mux.HandleFunc("/preview.png", func(w http.ResponseWriter, r *http.Request) {
		vertices, scalars, ok := previewData(stateTracker)
		if !ok {
			http.Error(w, "No mesh loaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mesh.NewPreviewRenderer(vertices, scalars).WritePNG(w); err != nil {
			log.Printf("[HTTP] error encoding preview PNG: %v", err)
		}
	})

	// Body preview, vector
	mux.HandleFunc("/preview.svg", func(w http.ResponseWriter, r *http.Request) {
		vertices, scalars, ok := previewData(stateTracker)
		if !ok {
			http.Error(w, "No mesh loaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := mesh.NewVectorRenderer(vertices, scalars).RenderToSVG(w); err != nil {
			log.Printf("[HTTP] error encoding preview SVG: %v", err)
		}
	})

	// Frame result stream
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleFrameStream(stateTracker, w, r)
	})

	// Default route serves an HTML page embedding the live preview
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>smart-garment</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img id="preview" src="/preview.png" alt="Body preview">
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = () => { document.getElementById("preview").src = "/preview.png?t=" + Date.now(); };
</script>
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// previewData returns the mesh and the scalars to paint it with: the latest
// frame when there is one for this mesh, else sensor coverage
func previewData(st *mesh.StateTracker) ([]mesh.Vertex, []float64, bool) {
	vertices := st.Vertices()
	if len(vertices) == 0 {
		return nil, nil, false
	}
	if res := st.Latest(); res != nil && len(res.Scalars) == len(vertices) {
		return vertices, res.Scalars, true
	}
	return vertices, coverageScalars(st.Mapping()), true
}

// handleFrameStream pushes every new frame result to a websocket client.
// The latest result, if any, is sent immediately on connect.
func handleFrameStream(st *mesh.StateTracker, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HTTP] websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	frames, cancel := st.Subscribe()
	defer cancel()

	// Reader goroutine: detects client close; incoming messages are ignored
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[HTTP] websocket error: %v", err)
				}
				return
			}
		}
	}()

	send := func(res *mesh.FrameResult) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(res); err != nil {
			log.Printf("[HTTP] websocket write error: %v", err)
			return false
		}
		return true
	}

	if res := st.Latest(); res != nil && !send(res) {
		return
	}

	for {
		select {
		case <-closed:
			return
		case res, ok := <-frames:
			if !ok || !send(res) {
				return
			}
		}
	}
}

func writeJSONResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] error encoding JSON response: %v", err)
	}
}
