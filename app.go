package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/PhilipZhang0907/smart-garment/mesh"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *mesh.Config
	Calibration  *mesh.CalibrationTable
	Projector    *mesh.MeshProjector
	Assembler    *mesh.ScalarAssembler
	StateTracker *mesh.StateTracker
	MQTTClient   *mesh.MQTTClient
	Publisher    *mesh.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile     string
	MeshFile       string
	Mode           string
	MappingCache   string
	LastFrameCache string
	OutputFile     string
	ScalarsFile    string
	RenderFormat   string
	Condition      bool
	HttpPort       int
	MqttMode       bool
	HttpMode       bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: mesh.NewStateTracker(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.MeshFile = opts.MeshFile
	a.Mode = opts.Mode
	a.MappingCache = opts.MappingCache
	a.LastFrameCache = opts.LastFrameCache
	a.OutputFile = opts.OutputFile
	a.ScalarsFile = opts.ScalarsFile
	a.RenderFormat = opts.RenderFormat
	a.Condition = opts.Condition
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode

	if a.LastFrameCache != "" {
		a.StateTracker = mesh.NewStateTrackerWithCache(a.LastFrameCache)
	}
}

// loadConfig reads the YAML config and applies CLI overrides
func (a *App) loadConfig() error {
	config, err := mesh.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", a.ConfigFile, err)
	}
	if a.MeshFile != "" {
		config.Mesh = a.MeshFile
	}
	if a.Mode != "" {
		config.Mode = mesh.Mode(a.Mode)
	}
	if a.MappingCache != "" {
		config.MappingCache = a.MappingCache
	}
	if a.Condition {
		config.Conditioning.Enabled = true
	}
	if a.HttpPort != 0 {
		config.HTTP.Port = a.HttpPort
	}
	if err := config.Validate(); err != nil {
		return err
	}
	a.Config = config
	log.Printf("Loaded config from %s (mode=%s)", a.ConfigFile, config.Mode)
	return nil
}

// loadEngine runs Configure and Project: config, mesh, mapping, calibration
// and assembler. Every failure here is fatal for the caller.
func (a *App) loadEngine(ctx context.Context) error {
	if a.Config == nil {
		if err := a.loadConfig(); err != nil {
			return err
		}
	}
	config := a.Config

	projector, err := mesh.NewMeshProjector(config.EffectiveGeometry())
	if err != nil {
		return err
	}
	a.Projector = projector

	vertices, err := mesh.OBJFile(config.Mesh).Vertices()
	if err != nil {
		return fmt.Errorf("loading mesh %s: %w", config.Mesh, err)
	}
	log.Printf("Loaded %d vertices from %s", len(vertices), config.Mesh)

	table, stats, _ := projector.LoadOrProject(config.MappingCache, vertices)
	a.StateTracker.SetMesh(vertices, table, stats)

	cal, err := config.LoadCalibration(ctx)
	if err != nil {
		return fmt.Errorf("loading calibration: %w", err)
	}
	a.Calibration = cal
	log.Printf("Loaded %s calibration (%d segments)", cal.Mode, len(cal.Segments))

	assembler, err := mesh.NewScalarAssembler(table, cal, mesh.WithConditioning(config.Conditioning.Enabled))
	if err != nil {
		return err
	}
	a.Assembler = assembler
	return nil
}

// processFrame assembles one frame and records it in the state tracker
func (a *App) processFrame(f *mesh.Frame) (*mesh.FrameResult, error) {
	res, err := a.Assembler.AssembleFrame(f)
	if err != nil {
		a.StateTracker.Reject()
		return nil, err
	}
	a.StateTracker.Update(res, f.Cloths, f.Pants)
	return res, nil
}

// handleFrame is the MQTT frame callback. Bad frames are logged and dropped.
func (a *App) handleFrame(payload []byte, frame *mesh.Frame, err error) {
	if err != nil {
		a.StateTracker.Reject()
		return
	}

	start := time.Now()
	res, err := a.processFrame(frame)
	if err != nil {
		log.Printf("[ASSEMBLE] dropping frame: %v", err)
		return
	}
	log.Printf("[ASSEMBLE] frame %s: %d/%d covered, max=%.0f in %v",
		res.FrameID, res.Covered, len(res.Scalars), res.MaxScalar, time.Since(start).Round(time.Microsecond))

	if a.Publisher != nil {
		if err := a.Publisher.PublishResult(res); err != nil {
			log.Printf("[MQTT] error publishing frame %s: %v", res.FrameID, err)
		}
	}
}

// RunProject projects the mesh, refreshes the mapping cache and prints
// per-segment coverage
func (a *App) RunProject() {
	if err := a.loadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	projector, err := mesh.NewMeshProjector(a.Config.EffectiveGeometry())
	if err != nil {
		log.Fatalf("Invalid geometry: %v", err)
	}
	vertices, err := mesh.OBJFile(a.Config.Mesh).Vertices()
	if err != nil {
		log.Fatalf("Failed to load mesh: %v", err)
	}

	table, stats := projector.Project(vertices)
	if a.Config.MappingCache != "" {
		if err := mesh.SaveMappingTable(a.Config.MappingCache, table); err != nil {
			log.Fatalf("Failed to save mapping cache: %v", err)
		}
		fmt.Printf("Mapping cache written to %s\n", a.Config.MappingCache)
	}
	printProjectionStats(os.Stdout, stats)
}

// printProjectionStats writes a per-segment summary table
func printProjectionStats(w io.Writer, stats mesh.ProjectionStats) {
	segs := make([]mesh.SegmentID, 0, len(stats.Segments))
	for s := range stats.Segments {
		segs = append(segs, s)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i] < segs[j] })

	fmt.Fprintf(w, "\nProjected %d vertices (%d mapped)\n", stats.Total, stats.Mapped)
	fmt.Fprintln(w, "==============================")
	for _, s := range segs {
		fmt.Fprintf(w, "  %-10s %7d\n", s, stats.Segments[s])
	}
	fmt.Fprintf(w, "  on axis    %7d\n", stats.Degenerate)
	fmt.Fprintf(w, "  out of range %5d\n", stats.OutOfRange)
}

// RunAssemble assembles one frame from a pair of .npy grids, writes the
// scalars as JSON and renders a preview
func (a *App) RunAssemble(pair string) {
	parts := strings.Split(pair, ",")
	if len(parts) != 2 {
		log.Fatalf("--assemble expects CLOTHS.npy,PANTS.npy, got %q", pair)
	}
	if err := a.loadEngine(context.Background()); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	frame, err := mesh.LoadNPYFrame(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	if err != nil {
		log.Fatalf("Failed to load frame: %v", err)
	}
	res, err := a.processFrame(frame)
	if err != nil {
		log.Fatalf("Failed to assemble frame: %v", err)
	}

	if err := writeJSON(a.ScalarsFile, res); err != nil {
		log.Fatalf("Failed to write scalars: %v", err)
	}
	fmt.Printf("Scalars for %d vertices written to %s (%d covered, max %.0f)\n",
		len(res.Scalars), a.ScalarsFile, res.Covered, res.MaxScalar)

	written, err := renderPreview(a.StateTracker.Vertices(), res.Scalars, a.OutputFile, a.RenderFormat)
	if err != nil {
		log.Fatalf("Failed to render preview: %v", err)
	}
	for _, p := range written {
		fmt.Printf("Preview written to %s\n", p)
	}
}

// RunRender renders the last assembled frame, or sensor coverage if no
// frame for this mesh has been cached
func (a *App) RunRender() {
	if err := a.loadEngine(context.Background()); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	var scalars []float64
	if res := a.StateTracker.Latest(); res != nil {
		scalars = res.Scalars
		fmt.Printf("Rendering frame %s\n", res.FrameID)
	} else {
		scalars = coverageScalars(a.StateTracker.Mapping())
		fmt.Println("No cached frame, rendering sensor coverage")
	}

	written, err := renderPreview(a.StateTracker.Vertices(), scalars, a.OutputFile, a.RenderFormat)
	if err != nil {
		log.Fatalf("Failed to render preview: %v", err)
	}
	for _, p := range written {
		fmt.Printf("Preview written to %s\n", p)
	}
}

// coverageScalars paints every mapped vertex at the zero-pressure level
func coverageScalars(table *mesh.MappingTable) []float64 {
	out := make([]float64, table.Len())
	if table == nil {
		return out
	}
	for i, pt := range table.Points {
		if pt.Mapped() {
			out[i] = mesh.Bias
		}
	}
	return out
}

// renderPreview writes the body preview in the requested format(s) and
// returns the paths written. Vector output replaces the extension with .svg.
func renderPreview(vertices []mesh.Vertex, scalars []float64, output, format string) ([]string, error) {
	if format == "" {
		format = "raster"
	}
	var written []string

	if format == "raster" || format == "both" {
		if err := mesh.NewPreviewRenderer(vertices, scalars).SavePNG(output); err != nil {
			return written, err
		}
		written = append(written, output)
	}

	if format == "vector" || format == "both" {
		svgPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".svg"
		f, err := os.Create(svgPath)
		if err != nil {
			return written, fmt.Errorf("creating %s: %w", svgPath, err)
		}
		defer func() { _ = f.Close() }()
		if err := mesh.NewVectorRenderer(vertices, scalars).RenderToSVG(f); err != nil {
			return written, fmt.Errorf("rendering %s: %w", svgPath, err)
		}
		written = append(written, svgPath)
	}

	if len(written) == 0 {
		return nil, fmt.Errorf("unknown render format %q (want raster, vector or both)", format)
	}
	return written, nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// RunService runs MQTT ingest and/or the HTTP server until interrupted
func (a *App) RunService() {
	fmt.Println("Starting smart-garment service...")

	if err := a.loadEngine(context.Background()); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	config := a.Config

	if a.MqttMode {
		mqttClient, err := mesh.InitMQTT(config, a.handleFrame)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}
		a.MQTTClient = mqttClient
		a.Publisher = mesh.NewPublisher(mqttClient.GetClient(), config.MQTT.PublishPrefix)
		fmt.Println("MQTT frame publisher initialized")
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", config.HTTP.Port),
			Handler:           newHTTPServer(a.StateTracker, a.Calibration),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Printf("  Subscribed to: %s\n", config.MQTT.FrameTopic)
		fmt.Printf("  Publishing to: %s\n", a.Publisher.ScalarsTopic())
		fmt.Printf("  Frame stats:   %s\n", a.Publisher.StatsTopic())
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", config.HTTP.Port)
		fmt.Println("  GET /health           - Health check")
		fmt.Println("  GET /scalars          - Latest per-vertex scalars (JSON)")
		fmt.Println("  GET /mapping          - Vertex mapping table (JSON)")
		fmt.Println("  GET /grid/cloths.png  - Last cloths grid heat map")
		fmt.Println("  GET /grid/pants.png   - Last pants grid heat map")
		fmt.Println("  GET /preview.png      - Body preview (raster)")
		fmt.Println("  GET /preview.svg      - Body preview (vector)")
		fmt.Println("  GET /ws               - Websocket stream of frame results")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down service...")
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("[HTTP] shutdown: %v", err)
		}
		cancel()
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}
