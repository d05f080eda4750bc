package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appconfig "marketsim/config"
	"marketsim/internal/sim"
	"marketsim/internal/storage"
	"marketsim/logger"
	"marketsim/models"
)

// Run lifecycle states reported through the status endpoint.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// rangeBoundMaxDeviation caps how far a range-bound path may wander from its
// starting value before it is rejected and re-simulated.
const rangeBoundMaxDeviation = 0.2

type runState struct {
	status   string
	progress float64
	errMsg   string
	paths    []string
}

// Service executes simulation requests and tracks their lifecycle. It is safe
// for concurrent use by the HTTP handlers.
type Service struct {
	cfg  *appconfig.Config
	sink *storage.Sink

	validate *validator.Validate

	mu   sync.RWMutex
	runs map[string]*runState

	sinkMu sync.Mutex
	sinks  map[storage.Kind]*storage.Sink

	log *logger.Log
}

// NewService wires a Service over the configured storage backend.
func NewService(cfg *appconfig.Config) (*Service, error) {
	sink, err := storage.NewSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return &Service{
		cfg:      cfg,
		sink:     sink,
		validate: validator.New(),
		runs:     make(map[string]*runState),
		sinks:    make(map[storage.Kind]*storage.Sink),
		log:      logger.GetLogger(),
	}, nil
}

// sinkFor resolves the sink a request's storage_type selects, falling back to
// the configured default backend when the request names none. Sinks built for
// an override are cached and reused across requests.
func (s *Service) sinkFor(storageType StorageType) (*storage.Sink, error) {
	if storageType == "" {
		return s.sink, nil
	}

	var kind storage.Kind
	switch storageType {
	case StorageLocal:
		kind = storage.KindLocal
	case StorageS3:
		kind = storage.KindS3
	default:
		return nil, fmt.Errorf("%w: storage_type %q is not supported", sim.ErrConfiguration, storageType)
	}
	if kind == storage.Kind(s.cfg.Storage.Backend) {
		return s.sink, nil
	}
	if kind == storage.KindS3 && !s.cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("%w: S3 storage was requested but is not configured", sim.ErrConfiguration)
	}

	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	if sink, ok := s.sinks[kind]; ok {
		return sink, nil
	}
	sink, err := storage.NewSinkKind(s.cfg, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: storage backend %s unavailable: %v", sim.ErrConfiguration, kind, err)
	}
	s.sinks[kind] = sink
	return sink, nil
}

// driftFor maps the requested market type onto the path drift. Bullish and
// bearish runs tilt by the configured default drift; volatile and range-bound
// runs are driftless.
func (s *Service) driftFor(marketType MarketType) float64 {
	drift := s.cfg.Simulation.DefaultDrift
	if drift == 0 {
		drift = 0.1
	}
	switch marketType {
	case MarketBullish:
		return drift
	case MarketBearish:
		return -drift
	}
	return 0
}

func (s *Service) setRun(id string, mutate func(*runState)) {
	s.mu.Lock()
	state, ok := s.runs[id]
	if !ok {
		state = &runState{}
		s.runs[id] = state
	}
	mutate(state)
	s.mu.Unlock()
}

// Status returns the current state of a run, or false when the run is
// unknown.
func (s *Service) Status(id string) (StatusResponse, bool) {
	s.mu.RLock()
	state, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return StatusResponse{}, false
	}
	return StatusResponse{
		SimulationID: id,
		Status:       state.status,
		Progress:     state.progress,
		ErrorMessage: state.errMsg,
		StoragePaths: state.paths,
	}, true
}

func (s *Service) defaulted(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// RunSimulation executes the simple path simulation: a GBM or jump-diffusion
// close series validated against the requested market type, plus an optional
// single-expiry option chain.
func (s *Service) RunSimulation(ctx context.Context, req SimulateRequest) (*SimulateResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", sim.ErrConfiguration, err)
	}
	sink, err := s.sinkFor(req.StorageType)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	log := s.log.WithComponent("simulation_service").WithFields(logger.Fields{
		"run_id":      id,
		"market_type": string(req.MarketType),
		"days":        req.TimePeriodDays,
	})
	log.Info("starting path simulation")

	logger.IncrementRunStarted()
	s.setRun(id, func(r *runState) { r.status = StatusRunning })
	started := time.Now()

	kind := models.ModelGBM
	if req.MarketType == MarketVolatile {
		kind = models.ModelJumpDiffusion
	}

	params := models.PathParams{
		InitialValue:   req.InitialValue,
		HorizonYears:   float64(req.TimePeriodDays) / 252.0,
		Steps:          req.TimePeriodDays,
		Drift:          s.driftFor(req.MarketType),
		Volatility:     req.Volatility,
		JumpIntensity:  s.cfg.Simulation.DefaultJumpIntensity,
		JumpMean:       s.cfg.Simulation.DefaultJumpMean,
		JumpVolatility: s.cfg.Simulation.DefaultJumpVolatility,
		Seed:           req.Seed,
	}

	maxAttempts := s.cfg.Simulation.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var prices []float64
	for attempt := 0; ; attempt++ {
		if req.Seed != 0 {
			params.Seed = req.Seed + uint64(attempt)
		}
		p, err := sim.RunPath(kind, params)
		if err != nil {
			s.failRun(id, kind, err)
			return nil, err
		}
		if validatePath(p, req.MarketType) {
			prices = p
			break
		}
		if attempt == maxAttempts-1 {
			err := fmt.Errorf("failed to generate valid %s market data after %d attempts", req.MarketType, maxAttempts)
			s.failRun(id, kind, err)
			return nil, err
		}
		simulationRetries.Inc()
		log.WithFields(logger.Fields{"attempt": attempt + 1}).Warn("path failed market type validation, retrying")
	}

	paths, err := s.storePathRun(ctx, sink, id, req, prices)
	if err != nil {
		s.failRun(id, kind, err)
		return nil, err
	}

	s.setRun(id, func(r *runState) {
		r.status = StatusCompleted
		r.progress = 100
		r.paths = paths
	})
	logger.IncrementRunCompleted()
	simulationRuns.WithLabelValues(string(kind), StatusCompleted).Inc()
	simulationDuration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
	datasetRows.WithLabelValues("path").Add(float64(len(prices)))

	log.WithFields(logger.Fields{
		"rows":     len(prices),
		"datasets": len(paths),
		"elapsed":  time.Since(started).String(),
	}).Info("path simulation completed")

	return &SimulateResponse{SimulationID: id, Status: StatusCompleted, StoragePaths: paths}, nil
}

func (s *Service) storePathRun(ctx context.Context, sink *storage.Sink, id string, req SimulateRequest, prices []float64) ([]string, error) {
	dates := businessDays(time.Now().UTC(), len(prices))

	data, err := storage.EncodePathCSV(dates, prices)
	if err != nil {
		return nil, err
	}

	pathKey := fmt.Sprintf("%s_path_data.csv", id)
	if err := sink.Backend().Save(ctx, pathKey, data); err != nil {
		return nil, err
	}
	logger.IncrementStorageWrite(int64(len(data)))
	keys := []string{pathKey}

	if req.IncludeOptions && req.OptionsConfig != nil {
		chain, err := sim.GenerateOptionChain(
			prices[len(prices)-1],
			req.OptionsConfig.StrikeRangePercent,
			req.OptionsConfig.NumStrikes,
			req.OptionsConfig.TimeToExpiryDays,
			req.Volatility,
			sim.DefaultRiskFreeRate,
		)
		if err != nil {
			return nil, err
		}
		chainData, err := storage.EncodeChainCSV(chain.Strikes, chain.Calls, chain.Puts, chain.ExpiryDays)
		if err != nil {
			return nil, err
		}
		chainKey := fmt.Sprintf("%s_option_chain.csv", id)
		if err := sink.Backend().Save(ctx, chainKey, chainData); err != nil {
			return nil, err
		}
		logger.IncrementStorageWrite(int64(len(chainData)))
		keys = append(keys, chainKey)
	}

	return keys, nil
}

// RunMarketSimulation executes the full regime-switching market run and
// persists the index and options datasets.
func (s *Service) RunMarketSimulation(ctx context.Context, req MarketSimulateRequest) (*SimulateResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", sim.ErrConfiguration, err)
	}
	sink, err := s.sinkFor(req.StorageType)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	log := s.log.WithComponent("simulation_service").WithFields(logger.Fields{
		"run_id":  id,
		"days":    req.TimePeriodDays,
		"regimes": len(req.Regimes),
	})
	log.Info("starting market simulation")

	logger.IncrementRunStarted()
	s.setRun(id, func(r *runState) { r.status = StatusRunning })
	started := time.Now()

	params, err := s.marketParams(req)
	if err != nil {
		s.failRun(id, models.ModelRegimeJumpDiffusion, err)
		return nil, err
	}

	result, err := sim.RunMarket(params)
	if err != nil {
		s.failRun(id, models.ModelRegimeJumpDiffusion, err)
		return nil, err
	}

	paths, err := sink.WriteRun(ctx, id, result.Index, result.Options)
	if err != nil {
		s.failRun(id, models.ModelRegimeJumpDiffusion, err)
		return nil, err
	}

	s.setRun(id, func(r *runState) {
		r.status = StatusCompleted
		r.progress = 100
		r.paths = paths
	})
	logger.IncrementRunCompleted()
	simulationRuns.WithLabelValues(string(models.ModelRegimeJumpDiffusion), StatusCompleted).Inc()
	simulationDuration.WithLabelValues(string(models.ModelRegimeJumpDiffusion)).Observe(time.Since(started).Seconds())
	datasetRows.WithLabelValues("index").Add(float64(len(result.Index)))
	datasetRows.WithLabelValues("options").Add(float64(len(result.Options)))

	log.WithFields(logger.Fields{
		"index_rows":   len(result.Index),
		"options_rows": len(result.Options),
		"elapsed":      time.Since(started).String(),
	}).Info("market simulation completed")

	return &SimulateResponse{SimulationID: id, Status: StatusCompleted, StoragePaths: paths}, nil
}

func (s *Service) marketParams(req MarketSimulateRequest) (models.MarketParams, error) {
	regimes := make([]models.Regime, len(req.Regimes))
	for i, r := range req.Regimes {
		regimes[i] = models.Regime{Name: r.Name, Mu: r.Mu, Sigma: r.Sigma, Theta: r.Theta}
	}

	subSteps := req.SubSteps
	if subSteps == 0 {
		subSteps = s.cfg.Simulation.SubSteps
	}
	emaWindow := req.EMAWindow
	if emaWindow == 0 {
		emaWindow = s.cfg.Simulation.EMAWindow
	}

	params := models.MarketParams{
		InitialValue:       req.InitialValue,
		HorizonDays:        req.TimePeriodDays,
		SubSteps:           subSteps,
		Regimes:            regimes,
		Transition:         models.TransitionMatrix(req.TransitionMatrix),
		JumpIntensity:      s.defaulted(req.JumpIntensity, s.cfg.Simulation.DefaultJumpIntensity),
		JumpMean:           req.JumpMean,
		JumpVolatility:     s.defaulted(req.JumpVolatility, s.cfg.Simulation.DefaultJumpVolatility),
		EMAWindow:          emaWindow,
		OpenInterestTarget: s.defaulted(req.OpenInterestTarget, s.cfg.Simulation.OpenInterestTarget),
		SessionStart:       s.cfg.Simulation.SessionStartTime(),
		Seed:               req.Seed,
	}
	if req.JumpMean == 0 {
		params.JumpMean = s.cfg.Simulation.DefaultJumpMean
	}
	if req.SessionStart != "" {
		start, err := time.Parse("2006-01-02 15:04", req.SessionStart)
		if err != nil {
			return models.MarketParams{}, fmt.Errorf("%w: session_start %q is not in 'YYYY-MM-DD HH:MM' form", sim.ErrConfiguration, req.SessionStart)
		}
		params.SessionStart = start.UTC()
	}
	return params, nil
}

func (s *Service) failRun(id string, kind models.ModelKind, err error) {
	s.setRun(id, func(r *runState) {
		r.status = StatusFailed
		r.errMsg = err.Error()
	})
	simulationRuns.WithLabelValues(string(kind), StatusFailed).Inc()
	s.log.WithComponent("simulation_service").WithFields(logger.Fields{"run_id": id}).WithError(err).Error("simulation failed")
}

// validatePath checks that a simulated path actually exhibits the requested
// market behaviour. Bullish paths must end up, bearish paths down, and
// range-bound paths must stay within rangeBoundMaxDeviation of the start.
func validatePath(prices []float64, marketType MarketType) bool {
	if len(prices) == 0 {
		return false
	}
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}

	totalReturn := prices[len(prices)-1]/prices[0] - 1
	switch marketType {
	case MarketBullish:
		return totalReturn > 0
	case MarketBearish:
		return totalReturn < 0
	case MarketRangeBound:
		maxDeviation := 0.0
		for _, p := range prices {
			if d := math.Abs(p-prices[0]) / prices[0]; d > maxDeviation {
				maxDeviation = d
			}
		}
		return maxDeviation <= rangeBoundMaxDeviation
	}
	return true
}

// businessDays generates n consecutive weekday dates starting from the first
// weekday on or after start.
func businessDays(start time.Time, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	day := start
	for len(dates) < n {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return dates
}
