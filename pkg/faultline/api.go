// Package faultline is the embedding surface for glitching campaigns: it
// assembles the parameter space, search engine, backend, and store from a
// declarative request and runs the trial loop.
package faultline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"faultline/internal/backend"
	"faultline/internal/campaign"
	"faultline/internal/classify"
	"faultline/internal/model"
	"faultline/internal/paramspace"
	"faultline/internal/search"
	"faultline/internal/store"
	"faultline/internal/timing"
	"faultline/internal/trigger"
)

const defaultDBPath = "faultline.db"

type Options struct {
	StoreKind string
	DBPath    string
	// Columns names the store's parameter columns. Required for persistent
	// backends; defaults to delay and length.
	Columns []string
}

type Client struct {
	store   store.Store
	columns []string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = store.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	columns := opts.Columns
	if len(columns) == 0 {
		columns = []string{"delay", "length"}
	}

	s, err := store.Open(storeKind, dbPath, columns)
	if err != nil {
		return nil, err
	}
	return &Client{store: s, columns: columns}, nil
}

func (c *Client) Close() error {
	return store.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// DimensionSpec declares one searched parameter range.
type DimensionSpec struct {
	Name  string
	Lower float64
	Upper float64
	Bins  int
}

// CampaignRequest declares a full campaign. Zero values select defaults.
type CampaignRequest struct {
	Dimensions []DimensionSpec
	Trials     int
	Seed       int64

	PopulationSize    int
	GenomeLength      int
	MalusFactor       float64
	GenerationCadence int
	Selection         string

	Classifier     string
	TriggerSource  string // "edge" or "pattern"
	TriggerPattern string // pattern source only

	Backend  string // "crowbar", "mux", "shaper"
	Rails    map[string]float64
	Cooldown time.Duration

	ArmTimeout  time.Duration
	ReadTimeout time.Duration

	FailLimit            int
	FailWindow           int
	PowerCycleAfterFault bool

	// TargetResponse is what the simulated target answers after a glitch.
	// Ignored when real hardware is wired in through RunWith.
	TargetResponse string
}

// BinSummary is one parameter-space bin in a campaign summary.
type BinSummary struct {
	Coordinate []int
	Weight     float64
	Visits     int64
}

// CampaignSummary reports a finished run.
type CampaignSummary struct {
	RunID    string
	Trials   int64
	Speed    float64
	BestBins []BinSummary
}

func (req *CampaignRequest) applyDefaults() {
	if len(req.Dimensions) == 0 {
		req.Dimensions = []DimensionSpec{
			{Name: "delay", Lower: 0, Upper: 100_000, Bins: 10},
			{Name: "length", Lower: 0, Upper: 1_000, Bins: 10},
		}
	}
	if req.Trials <= 0 {
		req.Trials = 100
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	if req.TriggerSource == "" {
		req.TriggerSource = "edge"
	}
	// the default classifier must recognize the default target response
	if req.Classifier == "" {
		req.Classifier = "rdp"
	}
	if req.Backend == "" {
		req.Backend = "crowbar"
	}
	if req.ArmTimeout <= 0 {
		req.ArmTimeout = time.Second
	}
	if req.ReadTimeout <= 0 {
		req.ReadTimeout = 100 * time.Millisecond
	}
	if req.TargetResponse == "" {
		req.TargetResponse = "read-out protection enabled\r\n"
	}
}

func (req *CampaignRequest) space() (*paramspace.Space, error) {
	dims := make([]paramspace.Dimension, len(req.Dimensions))
	for i, d := range req.Dimensions {
		dims[i] = paramspace.Dimension{Name: d.Name, Lower: d.Lower, Upper: d.Upper, Bins: d.Bins}
	}
	return paramspace.New(dims...)
}

// Run executes a campaign against the simulated rig: a target model that
// asserts the trigger and answers with the configured response. Hardware
// campaigns assemble their own backend and use RunWith.
func (c *Client) Run(ctx context.Context, req CampaignRequest, reporter campaign.Reporter) (CampaignSummary, error) {
	req.applyDefaults()

	rig, err := newSimRig(req)
	if err != nil {
		return CampaignSummary{}, err
	}
	defer rig.stop()

	return c.RunWith(ctx, req, rig.backend, rig.target, reporter)
}

// RunWith executes a campaign on a caller-supplied backend and target.
func (c *Client) RunWith(ctx context.Context, req CampaignRequest, b backend.Backend, target campaign.Target, reporter campaign.Reporter) (CampaignSummary, error) {
	req.applyDefaults()

	space, err := req.space()
	if err != nil {
		return CampaignSummary{}, err
	}
	selector, err := search.SelectorByName(req.Selection)
	if err != nil {
		return CampaignSummary{}, err
	}
	engine, err := search.New(space, search.Config{
		PopulationSize:    req.PopulationSize,
		GenomeLength:      req.GenomeLength,
		MalusFactor:       req.MalusFactor,
		GenerationCadence: req.GenerationCadence,
		Selector:          selector,
	}, rand.New(rand.NewSource(req.Seed)))
	if err != nil {
		return CampaignSummary{}, err
	}
	classifier, err := classify.ByName(req.Classifier)
	if err != nil {
		return CampaignSummary{}, err
	}

	run, err := campaign.New(campaign.Config{
		Trials:               req.Trials,
		ArmTimeout:           req.ArmTimeout,
		ReadTimeout:          req.ReadTimeout,
		PowerCycleAfterFault: req.PowerCycleAfterFault,
		FailLimit:            req.FailLimit,
		FailWindow:           req.FailWindow,
	}, campaign.Deps{
		Backend:    b,
		Search:     engine,
		Store:      c.store,
		Classifier: classifier,
		Target:     target,
		Reporter:   reporter,
	})
	if err != nil {
		return CampaignSummary{}, err
	}

	if err := run.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return CampaignSummary{}, err
	}

	best, err := engine.BestPerformingBins(10)
	if err != nil {
		return CampaignSummary{}, err
	}
	return CampaignSummary{
		RunID:    run.ID.String(),
		Trials:   run.Trials(),
		Speed:    run.Speed(),
		BestBins: binSummaries(best),
	}, nil
}

// BinsRequest recomputes bin statistics from the stored experiment log.
type BinsRequest struct {
	Dimensions  []DimensionSpec
	MalusFactor float64
	Top         int
}

// Bins replays the experiment log through a fresh engine and returns the
// best performing bins. It lets finished campaigns be analyzed offline.
func (c *Client) Bins(ctx context.Context, req BinsRequest) ([]BinSummary, error) {
	if len(req.Dimensions) == 0 {
		return nil, errors.New("dimensions are required to bin stored experiments")
	}
	if req.Top <= 0 {
		req.Top = 10
	}
	r := CampaignRequest{Dimensions: req.Dimensions}
	space, err := r.space()
	if err != nil {
		return nil, err
	}
	engine, err := search.New(space, search.Config{MalusFactor: req.MalusFactor}, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}

	experiments, err := c.store.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, exp := range experiments {
		if err := engine.AddExperiment(exp.Weight, exp.Params...); err != nil {
			// stored runs may cover a different space; skip what does not fit
			continue
		}
	}
	best, err := engine.BestPerformingBins(req.Top)
	if err != nil {
		return nil, err
	}
	return binSummaries(best), nil
}

// Experiments returns the stored log in insertion order.
func (c *Client) Experiments(ctx context.Context) ([]model.Experiment, error) {
	return c.store.All(ctx)
}

func binSummaries(stats []search.BinStat) []BinSummary {
	out := make([]BinSummary, len(stats))
	for i, s := range stats {
		out[i] = BinSummary{
			Coordinate: append([]int(nil), s.Coordinate...),
			Weight:     s.Weight,
			Visits:     s.Visits,
		}
	}
	return out
}

// buildBackend assembles the simulated hardware variant for a request.
func buildBackend(req CampaignRequest, detector trigger.Detector) (backend.Backend, error) {
	engine := timing.NewSimEngine()
	cycler := &backend.PowerCycler{Driver: backend.NewSimPower(), SettleTime: time.Millisecond}
	switch req.Backend {
	case "crowbar":
		return backend.NewCrowbar(engine, detector, cycler, req.Cooldown), nil
	case "mux":
		rails := req.Rails
		if len(rails) == 0 {
			rails = map[string]float64{"1v8": 1.8, "3v3": 3.3}
		}
		return backend.NewMux(engine, detector, cycler, req.Cooldown, rails), nil
	case "shaper":
		return backend.NewShaper(engine, detector, cycler, req.Cooldown, pulseshapeResolution), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", req.Backend)
	}
}

const pulseshapeResolution = 10 // ns per DAC sample
