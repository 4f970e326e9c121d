package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed command line
type AppOptions struct {
	ConfigFile     string
	MeshFile       string // overrides config mesh
	Mode           string // overrides config mode
	MappingCache   string // overrides config mappingCache
	LastFrameCache string
	ProjectOnly    bool
	Assemble       string // "CLOTHS.npy,PANTS.npy"
	RenderOnly     bool
	OutputFile     string
	ScalarsFile    string
	RenderFormat   string
	Condition      bool
	HttpPort       int
	MqttMode       bool
	HttpMode       bool
}

// application is the set of run modes main dispatches to
type application interface {
	ApplyOptions(opts AppOptions)
	RunProject()
	RunAssemble(pair string)
	RunRender()
	RunService()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			return
		}
		log.Fatal(err)
	}
}

// run parses args and dispatches to exactly one run mode of app
func run(args []string, out io.Writer, app application) error {
	fs := flag.NewFlagSet("smart-garment", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.MeshFile, "mesh", "", "Override the body mesh OBJ path from config")
	fs.StringVar(&opts.Mode, "mode", "", "Override the resolution mode from config: normal or upsample")
	fs.StringVar(&opts.MappingCache, "mapping-cache", "", "Override the mapping cache path from config")
	fs.StringVar(&opts.LastFrameCache, "frame-cache", ".last-frame.json", "Path to the last assembled frame cache (empty disables)")
	fs.BoolVar(&opts.ProjectOnly, "project", false, "Project the mesh, print segment statistics, write the mapping cache and exit")
	fs.StringVar(&opts.Assemble, "assemble", "", "Assemble one frame from CLOTHS.npy,PANTS.npy, write scalars and preview, and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render a body preview of the last frame (or sensor coverage) and exit")
	fs.StringVar(&opts.OutputFile, "output", "preview.png", "Output file for rendered previews")
	fs.StringVar(&opts.ScalarsFile, "scalars", "scalars.json", "Output file for --assemble scalars")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Render format: raster, vector, or both")
	fs.BoolVar(&opts.Condition, "condition", false, "Force grid conditioning on (short circuit, saturation, blur)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode: assemble incoming pressure frames")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for scalars, previews and the websocket stream")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default from config, else 8080)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "smart-garment version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.ProjectOnly:
		app.RunProject()
	case opts.Assemble != "":
		app.RunAssemble(opts.Assemble)
	case opts.RenderOnly:
		app.RunRender()
	case opts.MqttMode || opts.HttpMode:
		app.RunService()
	default:
		fmt.Fprintln(out, "smart-garment service starting...")
		fmt.Fprintln(out, "Use --project to project the mesh and write the mapping cache")
		fmt.Fprintln(out, "Use --assemble CLOTHS.npy,PANTS.npy to assemble one frame")
		fmt.Fprintln(out, "Use --render to output a body preview")
		fmt.Fprintln(out, "Use --mqtt to assemble frames arriving over MQTT")
		fmt.Fprintln(out, "Use --http to serve scalars and previews over HTTP")
		fmt.Fprintln(out, "\nConfiguration:")
		fmt.Fprintln(out, "  config.yaml         - mesh, calibration, MQTT and geometry settings")
		fmt.Fprintln(out, "  .mapping-cache.json - projected mesh mapping (cached)")
	}
	return nil
}
