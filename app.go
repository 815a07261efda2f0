package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/guptarohit/asciigraph"
	"github.com/kwv/fastslam/slam"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *slam.Config
	Filter     *slam.ParticleFilter
	State      *slam.StateTracker
	MQTTClient *slam.MQTTClient
	Publisher  *slam.Publisher
	Session    string
	Out        io.Writer

	mu       sync.Mutex // serializes filter cycles fed from MQTT
	scanTime time.Time  // timestamp of the scan being processed; zero uses the wall clock
}

// NewApp creates an App with the default configuration
func NewApp() *App {
	return &App{
		Config:  slam.DefaultConfig(),
		Session: uuid.NewString(),
		Out:     os.Stdout,
	}
}

// LoadConfig replaces the configuration with the file at path. An empty
// path keeps the defaults.
func (a *App) LoadConfig(path string) error {
	if path == "" {
		return nil
	}
	config, err := slam.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.Config = config
	slam.Logf("Loaded config from %s", path)
	return nil
}

// newFilter builds the particle filter, applying CLI overrides
func (a *App) newFilter(cfg slam.FilterConfig, particles int, seed int64) error {
	if particles > 0 {
		cfg.NumParticles = particles
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	pf, err := slam.NewParticleFilter(cfg)
	if err != nil {
		return fmt.Errorf("creating particle filter: %w", err)
	}
	a.Filter = pf
	a.State = slam.NewStateTracker(a.Config.HTTP.TrajectorySize)
	return nil
}

// simulationRoute is a loop through the default room that keeps clear of
// the pillar and the divider
func simulationRoute() []slam.Point {
	return []slam.Point{
		{X: 6, Y: -3.5},
		{X: 6, Y: 3.5},
		{X: -2, Y: 3.5},
		{X: -7, Y: -3.5},
		{X: 0, Y: -3.5},
	}
}

const (
	simSpeed    = 0.5 // m/s
	simTurnRate = 0.5 // rad/s
	waypointTol = 0.5 // m
)

// RunSimulate drives a simulated robot along a fixed route and runs the
// filter on its scans
func (a *App) RunSimulate(opts SimulateOptions) error {
	cfg := a.Config.Filter
	cfg.Simulation = true
	cfg.Likelihood.MaxRange = a.Config.Sensor.MaxRange
	if err := a.newFilter(cfg, opts.Particles, opts.Seed); err != nil {
		return err
	}
	cfg = a.Filter.Config()

	world := a.Config.World.World()
	if !world.FitsGrid(slam.NewGridMap(cfg.GridSize, cfg.CellSize)) {
		return fmt.Errorf("%w: world %v does not fit the %.1f m grid", slam.ErrInvalidConfig,
			world.Bound(), float64(cfg.GridSize)*cfg.CellSize)
	}
	scanner := a.Config.Sensor
	robot := &slam.Robot{Pose: cfg.InitialPose}
	noise := rand.New(rand.NewSource(cfg.Seed - 1))
	route := simulationRoute()
	target := 0

	fmt.Fprintf(a.Out, "Simulating %d steps with %d particles (seed %d)\n", opts.Steps, cfg.NumParticles, cfg.Seed)
	start := time.Now()

	var control slam.Twist
	resamples := 0
	for step := 0; step < opts.Steps; step++ {
		if step > 0 {
			if robot.Pose.Position.DistanceTo(route[target]) < waypointTol {
				target = (target + 1) % len(route)
			}
			control = slam.SteerTowards(robot.Pose, route[target], simSpeed, simTurnRate)
			robot.Drive(control, cfg.SimulationDt)
		}

		a.Filter.Cycle(scanner.Scan(robot.Pose, world, noise), control)
		a.record()
		a.State.RecordGroundTruth(robot.Pose)

		stats := a.Filter.Stats()
		if stats.Resampled {
			resamples++
		}
		if step%25 == 0 {
			slam.Logf("[sim] step %d: neff=%.1f best=%d icp=%d/%d", step, stats.Neff, stats.BestIndex, stats.ICPRuns-stats.ICPDiverged, stats.ICPRuns)
		}
	}

	if est, ok := a.State.Estimate(); ok {
		posErr := est.Pose.Position.DistanceTo(robot.Pose.Position)
		headErr := math.Abs(slam.WrapHeading(est.Pose.Heading - robot.Pose.Heading))
		fmt.Fprintf(a.Out, "Done in %v: %d resamples, final error %.3f m / %.1f°\n",
			time.Since(start).Round(time.Millisecond), resamples, posErr, headErr*180/math.Pi)
	}
	return a.finish(opts.Output, opts.Plot)
}

// RunReplay runs the filter over a recorded dataset, using the record
// timestamps as the filter clock and odometry differences as controls
func (a *App) RunReplay(opts ReplayOptions) error {
	dataset, err := loadDataset(opts.Source)
	if err != nil {
		return err
	}
	records := dataset.Records
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}

	clock := unixSeconds(records[0].Timestamp)

	cfg := a.Config.Filter
	cfg.Simulation = false
	cfg.Now = func() time.Time { return clock }
	if maxRange := dataset.MaxRange(); maxRange > 0 {
		cfg.Likelihood.MaxRange = maxRange
	}
	if err := a.newFilter(cfg, opts.Particles, opts.Seed); err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "Replaying %d records from %s\n", len(records), opts.Source)
	for i, rec := range records {
		var control slam.Twist
		if i > 0 {
			control, _ = slam.ControlBetween(records[i-1], rec)
		}
		clock = unixSeconds(rec.Timestamp)

		a.Filter.Cycle(rec.Scan(), control)
		a.record()
		a.State.RecordGroundTruth(rec.Pose.Pose())

		if i%50 == 0 {
			stats := a.Filter.Stats()
			slam.Logf("[replay] record %d/%d: dt=%.3f neff=%.1f skipped=%d", i+1, len(records), stats.Dt, stats.Neff, stats.Skipped)
		}
	}
	return a.finish(opts.Output, opts.Plot)
}

func unixSeconds(ts float64) time.Time {
	return time.Unix(0, 0).Add(time.Duration(ts * float64(time.Second)))
}

func loadDataset(source string) (*slam.Dataset, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return slam.FetchDataset(source)
	}
	return slam.LoadDataset(source)
}

// record pushes the latest estimate to the state tracker and MQTT
func (a *App) record() {
	best := a.Filter.BestParticle()
	stats := a.Filter.Stats()
	a.State.Update(best, stats)

	if a.Publisher != nil {
		if err := a.Publisher.PublishEstimate(best, stats); err != nil {
			slam.Logf("[mqtt] error publishing pose: %v", err)
		}
	}
}

// finish plots the Neff history and writes the map
func (a *App) finish(output string, plot bool) error {
	if plot {
		if neff := a.State.NeffHistory(); len(neff) > 1 {
			fmt.Fprintln(a.Out, asciigraph.Plot(neff,
				asciigraph.Height(10),
				asciigraph.Width(80),
				asciigraph.Caption("effective particle count per cycle"),
			))
		}
	}
	if output == "" {
		return nil
	}
	if err := a.writeMap(output); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Map written to %s\n", output)
	return nil
}

// trajectories in GeoJSON output are simplified to this many meters
const geoJSONTolerance = 0.05

// writeMap renders the current best map; the format follows the extension
func (a *App) writeMap(path string) error {
	grid := a.State.Map()
	if grid == nil {
		return errors.New("no map to write")
	}
	est, _ := a.State.Estimate()
	pose := est.Pose

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		r := slam.NewMapRenderer(grid)
		r.Scale = a.Config.Render.Scale
		r.Trajectory = a.State.TrajectoryPoses()
		r.GroundTruth = a.State.GroundTruth()
		r.Pose = &pose
		return r.SavePNG(path)
	case ".svg":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r := slam.NewVectorRenderer(grid)
		r.Trajectory = a.State.TrajectoryPoses()
		r.GroundTruth = a.State.GroundTruth()
		r.Pose = &pose
		return r.RenderToSVG(f)
	case ".geojson", ".json":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		return slam.WriteGeoJSON(f, slam.GeoJSONExport{
			Grid:        grid,
			Trajectory:  a.State.TrajectoryPoses(),
			GroundTruth: a.State.GroundTruth(),
			Pose:        &pose,
			Tolerance:   geoJSONTolerance,
		})
	default:
		return fmt.Errorf("unsupported map format %q (use .png, .svg or .geojson)", filepath.Ext(path))
	}
}

// HandleScan runs one filter cycle for a scan received over MQTT
func (a *App) HandleScan(msg *slam.ScanMessage, err error) {
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanTime = time.Time{}
	if msg.Timestamp > 0 {
		a.scanTime = unixSeconds(msg.Timestamp)
	}
	a.Filter.Cycle(msg.Scan(), msg.Twist)
	a.record()
}

// scanClock is the filter clock for live scans: the message timestamp when
// the sender set one, otherwise the time of arrival
func (a *App) scanClock() time.Time {
	if a.scanTime.IsZero() {
		return time.Now()
	}
	return a.scanTime
}

// newLiveFilter creates a filter whose dt follows the scan stream
func (a *App) newLiveFilter() error {
	cfg := a.Config.Filter
	cfg.Simulation = false
	cfg.Now = a.scanClock
	return a.newFilter(cfg, 0, 0)
}

// RunServe consumes scans over MQTT and serves the estimate over HTTP until
// interrupted
func (a *App) RunServe(opts ServeOptions) error {
	if err := a.newLiveFilter(); err != nil {
		return err
	}

	if !opts.NoMQTT {
		client, err := slam.InitMQTT(a.Config, a.HandleScan)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client != nil {
			a.MQTTClient = client
			a.Publisher = slam.NewPublisher(client.GetClient())
			a.Session = a.Publisher.Session()
		}
	}

	port := a.Config.HTTP.Port
	if opts.HTTPPort > 0 {
		port = opts.HTTPPort
	}
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           newHTTPServer(a.State, a.Config, a.Session),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slam.Logf("[HTTP] Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slam.Logf("[HTTP] Server error: %v", err)
		}
	}()

	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")
	if a.MQTTClient != nil {
		fmt.Fprintf(a.Out, "  Subscribed: %s\n", a.MQTTClient.ScanTopic())
		fmt.Fprintf(a.Out, "  Publishing: %s\n", a.Publisher.Topic())
	}
	fmt.Fprintf(a.Out, "  HTTP port %d: /health /pose /trajectory /map.png /map.svg /map-vector.png /map.geojson\n", port)
	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.Out, "\nShutting down service...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slam.Logf("[HTTP] shutdown: %v", err)
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}
