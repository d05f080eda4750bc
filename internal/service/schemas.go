package service

// MarketType labels the coarse market behaviour requested through the simple
// simulation endpoint.
type MarketType string

const (
	MarketBullish    MarketType = "BULLISH"
	MarketBearish    MarketType = "BEARISH"
	MarketVolatile   MarketType = "VOLATILE"
	MarketRangeBound MarketType = "RANGE_BOUND"
)

// StorageType selects where a run's datasets are written. An empty value
// falls back to the configured default backend.
type StorageType string

const (
	StorageLocal StorageType = "LOCAL"
	StorageS3    StorageType = "S3"
)

// OptionsConfig controls the single-shot option chain attached to a simple
// simulation run.
type OptionsConfig struct {
	StrikeRangePercent float64 `json:"strike_range_percent" validate:"gt=0"`
	NumStrikes         int     `json:"num_strikes" validate:"gt=0"`
	TimeToExpiryDays   int     `json:"time_to_expiry_days" validate:"gt=0"`
}

// SimulateRequest is the body of POST /api/v1/simulate. The market type
// picks the path model and drift; the run is retried when the generated path
// does not exhibit the requested behaviour.
type SimulateRequest struct {
	InitialValue   float64        `json:"initial_value" validate:"required,gt=0"`
	MarketType     MarketType     `json:"market_type" validate:"required,oneof=BULLISH BEARISH VOLATILE RANGE_BOUND"`
	Volatility     float64        `json:"volatility" validate:"required,gt=0,lte=1"`
	TimePeriodDays int            `json:"time_period_days" validate:"required,gt=0"`
	IncludeOptions bool           `json:"include_options"`
	OptionsConfig  *OptionsConfig `json:"options_config" validate:"omitempty"`
	StorageType    StorageType    `json:"storage_type" validate:"omitempty,oneof=LOCAL S3"`
	Seed           uint64         `json:"seed"`
}

// RegimeSpec is one market regime in a full market simulation request.
type RegimeSpec struct {
	Name  string  `json:"name" validate:"required"`
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma" validate:"required,gt=0"`
	Theta float64 `json:"theta"`
}

// MarketSimulateRequest is the body of POST /api/v1/simulate/market: a full
// regime-switching run producing the index bar series, the options chain and
// the open-interest pass.
type MarketSimulateRequest struct {
	InitialValue     float64      `json:"initial_value" validate:"required,gt=0"`
	TimePeriodDays   int          `json:"time_period_days" validate:"required,gt=0"`
	Regimes          []RegimeSpec `json:"regimes" validate:"required,min=1,dive"`
	TransitionMatrix [][]float64  `json:"transition_matrix" validate:"required,min=1"`

	// Zero-valued optional parameters fall back to the configured defaults.
	SubSteps           int         `json:"sub_steps" validate:"gte=0"`
	JumpIntensity      float64     `json:"jump_intensity" validate:"gte=0"`
	JumpMean           float64     `json:"jump_mean"`
	JumpVolatility     float64     `json:"jump_volatility" validate:"gte=0"`
	EMAWindow          int         `json:"ema_window" validate:"gte=0"`
	OpenInterestTarget float64     `json:"open_interest_target" validate:"gte=0"`
	SessionStart       string      `json:"session_start"`
	StorageType        StorageType `json:"storage_type" validate:"omitempty,oneof=LOCAL S3"`
	Seed               uint64      `json:"seed"`
}

// SimulateResponse acknowledges an accepted simulation run.
type SimulateResponse struct {
	SimulationID string   `json:"simulation_id"`
	Status       string   `json:"status"`
	StoragePaths []string `json:"storage_paths"`
}

// StatusResponse reports the lifecycle state of a simulation run.
type StatusResponse struct {
	SimulationID string   `json:"simulation_id"`
	Status       string   `json:"status"`
	Progress     float64  `json:"progress"`
	ErrorMessage string   `json:"error_message,omitempty"`
	StoragePaths []string `json:"storage_paths,omitempty"`
}
