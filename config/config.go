package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/pivotbot/internal/engine"
)

// Config es la configuración completa del bot de breakouts.
type Config struct {
	Symbols []string      `yaml:"symbols"`
	Engine  EngineConfig  `yaml:"engine"`
	Feed    FeedConfig    `yaml:"feed"`
	Levels  LevelsConfig  `yaml:"levels"`
	Paper   PaperConfig   `yaml:"paper"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig expone los umbrales del engine de decisión.
type EngineConfig struct {
	CandleSeconds    int     `yaml:"candle_seconds"`
	SubBarSeconds    int     `yaml:"sub_bar_seconds"`
	VolumeLookback   int     `yaml:"volume_lookback"`
	MaxAttempts      int     `yaml:"max_attempts"`
	DojiThresholdPct float64 `yaml:"doji_threshold_pct"`

	Breakout BreakoutConfig `yaml:"breakout"`
	Filters  FiltersConfig  `yaml:"filters"`
	Pivot    PivotConfig    `yaml:"pivot"`
	Position PositionConfig `yaml:"position"`
}

// BreakoutConfig controla la clasificación y los caminos de entrada.
type BreakoutConfig struct {
	MinInitialVolumeRatio float64 `yaml:"min_initial_volume_ratio"`
	MomentumVolumeRatio   float64 `yaml:"momentum_volume_ratio"`
	MomentumCandleMinPct  float64 `yaml:"momentum_candle_min_pct"`
	PullbackVolumeRatio   float64 `yaml:"pullback_volume_ratio"`
	PullbackCandleMinPct  float64 `yaml:"pullback_candle_min_pct"`
	RetestTolerancePct    float64 `yaml:"retest_tolerance_pct"`
	RetestMaxAgeMinutes   int     `yaml:"retest_max_age_minutes"`
	SustainedHoldMinutes  int     `yaml:"sustained_hold_minutes"`
	HoldTolerancePct      float64 `yaml:"hold_tolerance_pct"`
	WeakWindowMinutes     int     `yaml:"weak_window_minutes"`
	CVDSpikePct           float64 `yaml:"cvd_spike_pct"`
	CVDConfirmPct         float64 `yaml:"cvd_confirm_pct"`
	CVDSustainedPct       float64 `yaml:"cvd_sustained_pct"`
	CVDSustainedCount     int     `yaml:"cvd_sustained_count"`
	CVDTimeoutMinutes     int     `yaml:"cvd_timeout_minutes"`
	UseCVD                *bool   `yaml:"use_cvd"` // nil = activado
}

// FiltersConfig controla el pipeline de filtros de entrada.
type FiltersConfig struct {
	MinRoomToRunPct  float64 `yaml:"min_room_to_run_pct"`
	MinVolumeRatio   float64 `yaml:"min_volume_ratio"`
	ATRPeriod        int     `yaml:"atr_period"`
	ChopWindow       int     `yaml:"chop_window"`
	MinRangeATRRatio float64 `yaml:"min_range_atr_ratio"`
}

// PivotConfig controla los ajustes de pivot intra-sesión.
type PivotConfig struct {
	FailureRecoveryMinMovePct float64 `yaml:"failure_recovery_min_move_pct"`
}

// PositionConfig controla la gestión de posiciones abiertas.
type PositionConfig struct {
	Shares              float64 `yaml:"shares"`
	Partial1TriggerPct  float64 `yaml:"partial1_trigger_pct"`
	Partial1Fraction    float64 `yaml:"partial1_fraction"`
	Partial2Fraction    float64 `yaml:"partial2_fraction"`
	TrailingATRMult     float64 `yaml:"trailing_atr_mult"`
	TrailingFallbackPct float64 `yaml:"trailing_fallback_pct"`
	StallMinutes        int     `yaml:"stall_minutes"`
	StallMinGainPct     float64 `yaml:"stall_min_gain_pct"`
}

// FeedConfig configura las fuentes de datos de mercado.
type FeedConfig struct {
	CSVDir string `yaml:"csv_dir"` // histórico para replay
	WSURL  string `yaml:"ws_url"`  // stream en vivo
}

// LevelsConfig contiene el base URL del scanner de niveles.
type LevelsConfig struct {
	BaseURL string `yaml:"base_url"`
}

// PaperConfig configura el ejecutor de papel.
type PaperConfig struct {
	InitialCash float64 `yaml:"initial_cash"`
}

// StorageConfig controla dónde se persiste el registro de decisiones.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// EngineConfig traduce el YAML plano a la configuración tipada del engine.
func (c *Config) EngineConfig() engine.Config {
	e := c.Engine
	useCVD := true
	if e.Breakout.UseCVD != nil {
		useCVD = *e.Breakout.UseCVD
	}

	return engine.Config{
		CandleDuration:   time.Duration(e.CandleSeconds) * time.Second,
		SubBarDuration:   time.Duration(e.SubBarSeconds) * time.Second,
		VolumeLookback:   e.VolumeLookback,
		MaxAttempts:      e.MaxAttempts,
		DojiThresholdPct: e.DojiThresholdPct,
		Breakout: engine.BreakoutConfig{
			MinInitialVolumeRatio: e.Breakout.MinInitialVolumeRatio,
			MomentumVolumeRatio:   e.Breakout.MomentumVolumeRatio,
			MomentumCandleMinPct:  e.Breakout.MomentumCandleMinPct,
			PullbackVolumeRatio:   e.Breakout.PullbackVolumeRatio,
			PullbackCandleMinPct:  e.Breakout.PullbackCandleMinPct,
			RetestTolerancePct:    e.Breakout.RetestTolerancePct,
			RetestMaxAge:          time.Duration(e.Breakout.RetestMaxAgeMinutes) * time.Minute,
			SustainedHold:         time.Duration(e.Breakout.SustainedHoldMinutes) * time.Minute,
			HoldTolerancePct:      e.Breakout.HoldTolerancePct,
			WeakWindow:            time.Duration(e.Breakout.WeakWindowMinutes) * time.Minute,
			CVDSpikePct:           e.Breakout.CVDSpikePct,
			CVDConfirmPct:         e.Breakout.CVDConfirmPct,
			CVDSustainedPct:       e.Breakout.CVDSustainedPct,
			CVDSustainedCount:     e.Breakout.CVDSustainedCount,
			CVDTimeout:            time.Duration(e.Breakout.CVDTimeoutMinutes) * time.Minute,
			UseCVD:                useCVD,
		},
		Filter: engine.FilterConfig{
			MinRoomToRunPct:  e.Filters.MinRoomToRunPct,
			MinVolumeRatio:   e.Filters.MinVolumeRatio,
			ATRPeriod:        e.Filters.ATRPeriod,
			ChopWindow:       e.Filters.ChopWindow,
			MinRangeATRRatio: e.Filters.MinRangeATRRatio,
		},
		Pivot: engine.PivotConfig{
			FailureRecoveryMinMovePct: e.Pivot.FailureRecoveryMinMovePct,
		},
		Position: engine.PositionConfig{
			Shares:              e.Position.Shares,
			Partial1TriggerPct:  e.Position.Partial1TriggerPct,
			Partial1Fraction:    e.Position.Partial1Fraction,
			Partial2Fraction:    e.Position.Partial2Fraction,
			TrailingATRMult:     e.Position.TrailingATRMult,
			TrailingFallbackPct: e.Position.TrailingFallbackPct,
			Stall:               time.Duration(e.Position.StallMinutes) * time.Minute,
			StallMinGainPct:     e.Position.StallMinGainPct,
		},
	}
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LEVELS_BASE_URL"); v != "" {
		cfg.Levels.BaseURL = v
	}
	if v := os.Getenv("FEED_WS_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los defaults numéricos vienen del engine (engine.DefaultConfig).
func setDefaults(cfg *Config) {
	def := engine.DefaultConfig()

	e := &cfg.Engine
	if e.CandleSeconds <= 0 {
		e.CandleSeconds = int(def.CandleDuration / time.Second)
	}
	if e.SubBarSeconds <= 0 {
		e.SubBarSeconds = e.CandleSeconds
	}
	if e.VolumeLookback <= 0 {
		e.VolumeLookback = def.VolumeLookback
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = def.MaxAttempts
	}
	if e.DojiThresholdPct <= 0 {
		e.DojiThresholdPct = def.DojiThresholdPct
	}

	b := &e.Breakout
	if b.MinInitialVolumeRatio <= 0 {
		b.MinInitialVolumeRatio = def.Breakout.MinInitialVolumeRatio
	}
	if b.MomentumVolumeRatio <= 0 {
		b.MomentumVolumeRatio = def.Breakout.MomentumVolumeRatio
	}
	if b.MomentumCandleMinPct <= 0 {
		b.MomentumCandleMinPct = def.Breakout.MomentumCandleMinPct
	}
	if b.PullbackVolumeRatio <= 0 {
		b.PullbackVolumeRatio = def.Breakout.PullbackVolumeRatio
	}
	if b.PullbackCandleMinPct <= 0 {
		b.PullbackCandleMinPct = def.Breakout.PullbackCandleMinPct
	}
	if b.RetestTolerancePct <= 0 {
		b.RetestTolerancePct = def.Breakout.RetestTolerancePct
	}
	if b.RetestMaxAgeMinutes <= 0 {
		b.RetestMaxAgeMinutes = int(def.Breakout.RetestMaxAge / time.Minute)
	}
	if b.SustainedHoldMinutes <= 0 {
		b.SustainedHoldMinutes = int(def.Breakout.SustainedHold / time.Minute)
	}
	if b.HoldTolerancePct <= 0 {
		b.HoldTolerancePct = def.Breakout.HoldTolerancePct
	}
	if b.WeakWindowMinutes <= 0 {
		b.WeakWindowMinutes = int(def.Breakout.WeakWindow / time.Minute)
	}
	if b.CVDSpikePct <= 0 {
		b.CVDSpikePct = def.Breakout.CVDSpikePct
	}
	if b.CVDConfirmPct <= 0 {
		b.CVDConfirmPct = def.Breakout.CVDConfirmPct
	}
	if b.CVDSustainedPct <= 0 {
		b.CVDSustainedPct = def.Breakout.CVDSustainedPct
	}
	if b.CVDSustainedCount <= 0 {
		b.CVDSustainedCount = def.Breakout.CVDSustainedCount
	}
	if b.CVDTimeoutMinutes <= 0 {
		b.CVDTimeoutMinutes = int(def.Breakout.CVDTimeout / time.Minute)
	}

	f := &e.Filters
	if f.MinRoomToRunPct <= 0 {
		f.MinRoomToRunPct = def.Filter.MinRoomToRunPct
	}
	if f.MinVolumeRatio <= 0 {
		f.MinVolumeRatio = def.Filter.MinVolumeRatio
	}
	if f.ATRPeriod <= 0 {
		f.ATRPeriod = def.Filter.ATRPeriod
	}
	if f.ChopWindow <= 0 {
		f.ChopWindow = def.Filter.ChopWindow
	}
	if f.MinRangeATRRatio <= 0 {
		f.MinRangeATRRatio = def.Filter.MinRangeATRRatio
	}

	if e.Pivot.FailureRecoveryMinMovePct <= 0 {
		e.Pivot.FailureRecoveryMinMovePct = def.Pivot.FailureRecoveryMinMovePct
	}

	p := &e.Position
	if p.Shares <= 0 {
		p.Shares = def.Position.Shares
	}
	if p.Partial1TriggerPct <= 0 {
		p.Partial1TriggerPct = def.Position.Partial1TriggerPct
	}
	if p.Partial1Fraction <= 0 {
		p.Partial1Fraction = def.Position.Partial1Fraction
	}
	if p.Partial2Fraction <= 0 {
		p.Partial2Fraction = def.Position.Partial2Fraction
	}
	if p.TrailingATRMult <= 0 {
		p.TrailingATRMult = def.Position.TrailingATRMult
	}
	if p.TrailingFallbackPct <= 0 {
		p.TrailingFallbackPct = def.Position.TrailingFallbackPct
	}
	if p.StallMinutes <= 0 {
		p.StallMinutes = int(def.Position.Stall / time.Minute)
	}
	if p.StallMinGainPct <= 0 {
		p.StallMinGainPct = def.Position.StallMinGainPct
	}

	if cfg.Paper.InitialCash <= 0 {
		cfg.Paper.InitialCash = 25_000
	}
	if cfg.Feed.CSVDir == "" {
		cfg.Feed.CSVDir = "data"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "pivotbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
