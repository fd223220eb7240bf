package observability

import (
	"strings"

	"github.com/smallbiznis/studioledger/internal/config"
)

// Config is the slice of application config the logger, tracer and meter
// providers need.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel              string
	LogFormat             string
	LogSamplingInitial    int
	LogSamplingThereafter int
	// LogUnsampled names logger prefixes whose entries bypass sampling.
	LogUnsampled []string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	obs := Config{
		ServiceName:           strings.TrimSpace(cfg.AppName),
		Environment:           strings.TrimSpace(cfg.Environment),
		Version:               strings.TrimSpace(cfg.AppVersion),
		LogLevel:              cfg.LogLevel,
		LogFormat:             cfg.LogFormat,
		LogSamplingInitial:    cfg.LogSamplingInitial,
		LogSamplingThereafter: cfg.LogSamplingThereafter,
		LogUnsampled:          cfg.LogUnsampled,
		OtelEnabled:           cfg.OtelEnabled,
		OtelExporterEndpoint:  strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol:  cfg.OTLPProtocol,
		OtelSamplingRatio:     cfg.OtelSamplingRatio,
	}
	if obs.ServiceName == "" {
		obs.ServiceName = "studioledger"
	}
	if obs.OtelSamplingRatio < 0 || obs.OtelSamplingRatio > 1 {
		obs.OtelSamplingRatio = 0.1
	}
	return obs
}

// Debug is true for debug log level and for local environments.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
