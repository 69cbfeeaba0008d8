package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

// TrackingConfig holds every threshold the engine evaluates against. All of
// them are deployment inputs, not constants.
type TrackingConfig struct {
	AccuracyCeilingM  float64
	MaxPlausibleKmh   float64
	DuplicateRadiusM  float64
	DuplicateWindow   time.Duration
	StopRadiusM       float64
	StopMinFixes      int
	StopMinWindow     time.Duration
	StopHysteresis    float64
	MatchRadiusM      float64
	VerifyDwell       time.Duration
	LongStopThreshold time.Duration
	UnplannedStopMin  time.Duration
	SpeedLimitKmh     float64
	RouteCorridorM    float64
	RouteSustainFixes int
	MileageFloorKm    float64
	MileagePercent    float64
	GeohashPrecision  uint
}

type WatchdogConfig struct {
	Interval         time.Duration
	InactivityWindow time.Duration
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Tracking    TrackingConfig
	Watchdog    WatchdogConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Tracking: TrackingConfig{
			AccuracyCeilingM:  v.GetFloat64("TRACK_ACCURACY_CEILING_M"),
			MaxPlausibleKmh:   v.GetFloat64("TRACK_MAX_PLAUSIBLE_KMH"),
			DuplicateRadiusM:  v.GetFloat64("TRACK_DUPLICATE_RADIUS_M"),
			DuplicateWindow:   v.GetDuration("TRACK_DUPLICATE_WINDOW"),
			StopRadiusM:       v.GetFloat64("TRACK_STOP_RADIUS_M"),
			StopMinFixes:      v.GetInt("TRACK_STOP_MIN_FIXES"),
			StopMinWindow:     v.GetDuration("TRACK_STOP_MIN_WINDOW"),
			StopHysteresis:    v.GetFloat64("TRACK_STOP_HYSTERESIS"),
			MatchRadiusM:      v.GetFloat64("TRACK_MATCH_RADIUS_M"),
			VerifyDwell:       v.GetDuration("TRACK_VERIFY_DWELL"),
			LongStopThreshold: v.GetDuration("TRACK_LONG_STOP_THRESHOLD"),
			UnplannedStopMin:  v.GetDuration("TRACK_UNPLANNED_STOP_MIN"),
			SpeedLimitKmh:     v.GetFloat64("TRACK_SPEED_LIMIT_KMH"),
			RouteCorridorM:    v.GetFloat64("TRACK_ROUTE_CORRIDOR_M"),
			RouteSustainFixes: v.GetInt("TRACK_ROUTE_SUSTAIN_FIXES"),
			MileageFloorKm:    v.GetFloat64("TRACK_MILEAGE_FLOOR_KM"),
			MileagePercent:    v.GetFloat64("TRACK_MILEAGE_PERCENT"),
			GeohashPrecision:  uint(v.GetInt("TRACK_GEOHASH_PRECISION")),
		},
		Watchdog: WatchdogConfig{
			Interval:         v.GetDuration("WATCHDOG_INTERVAL"),
			InactivityWindow: v.GetDuration("WATCHDOG_INACTIVITY_WINDOW"),
		},
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7091
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	t := &cfg.Tracking
	if t.AccuracyCeilingM <= 0 {
		t.AccuracyCeilingM = 50
	}
	if t.MaxPlausibleKmh <= 0 {
		t.MaxPlausibleKmh = 300
	}
	if t.DuplicateRadiusM <= 0 {
		t.DuplicateRadiusM = 5
	}
	if t.DuplicateWindow <= 0 {
		t.DuplicateWindow = 10 * time.Second
	}
	if t.StopRadiusM <= 0 {
		t.StopRadiusM = 50
	}
	if t.StopMinFixes <= 0 {
		t.StopMinFixes = 3
	}
	if t.StopMinWindow <= 0 {
		t.StopMinWindow = 3 * time.Minute
	}
	if t.StopHysteresis <= 1 {
		t.StopHysteresis = 1.5
	}
	if t.MatchRadiusM <= 0 {
		t.MatchRadiusM = 100
	}
	if t.VerifyDwell <= 0 {
		t.VerifyDwell = time.Minute
	}
	if t.LongStopThreshold <= 0 {
		t.LongStopThreshold = 30 * time.Minute
	}
	if t.UnplannedStopMin <= 0 {
		t.UnplannedStopMin = 10 * time.Minute
	}
	if t.SpeedLimitKmh <= 0 {
		t.SpeedLimitKmh = 110
	}
	if t.RouteCorridorM <= 0 {
		t.RouteCorridorM = 200
	}
	if t.RouteSustainFixes <= 0 {
		t.RouteSustainFixes = 5
	}
	if t.MileageFloorKm <= 0 {
		t.MileageFloorKm = 3
	}
	if t.MileagePercent <= 0 {
		t.MileagePercent = 5
	}
	if t.GeohashPrecision == 0 {
		t.GeohashPrecision = 6
	}

	if cfg.Watchdog.Interval <= 0 {
		cfg.Watchdog.Interval = 5 * time.Minute
	}
	if cfg.Watchdog.InactivityWindow <= 0 {
		cfg.Watchdog.InactivityWindow = 2 * time.Hour
	}
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Watchdog.InactivityWindow <= cfg.Watchdog.Interval {
		return fmt.Errorf("WATCHDOG_INACTIVITY_WINDOW must exceed WATCHDOG_INTERVAL")
	}
	return nil
}
