package observability

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ca-srg/halalfinder/internal/types"
)

const (
	defaultServiceName      = "halalfinder"
	defaultExporterProtocol = "http/protobuf"
	protocolGRPC            = "grpc"
	defaultMetricInterval   = 60 * time.Second
	resourceServiceNameKey  = "service.name"
)

// Config keeps OpenTelemetry runtime settings resolved from the global configuration.
type Config struct {
	Enabled              bool
	ServiceName          string
	ServiceVersion       string
	ExporterEndpoint     string
	ExporterProtocol     string
	ResourceAttributes   map[string]string
	TracesSampler        string
	TracesSamplerArg     float64
	MetricExportInterval time.Duration

	endpoint *endpoint
}

// LoadConfig resolves observability settings from the root config.
func LoadConfig(cfg *types.Config, version string) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: nil root configuration provided")
	}

	attrs, err := parseResourceAttributes(cfg.OTelResourceAttributes)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to parse resource attributes: %w", err)
	}

	otelCfg := &Config{
		Enabled:              cfg.OTelEnabled,
		ServiceName:          strings.TrimSpace(cfg.OTelServiceName),
		ServiceVersion:       version,
		ExporterEndpoint:     strings.TrimSpace(cfg.OTelExporterOTLPEndpoint),
		ExporterProtocol:     cfg.OTelExporterOTLPProtocol,
		ResourceAttributes:   attrs,
		TracesSampler:        strings.TrimSpace(cfg.OTelTracesSampler),
		TracesSamplerArg:     cfg.OTelTracesSamplerArg,
		MetricExportInterval: cfg.OTelMetricExportInterval,
	}
	if err := otelCfg.Validate(); err != nil {
		return nil, err
	}
	return otelCfg, nil
}

// Validate fills defaults and, when enabled, checks the exporter settings.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("observability: config is nil")
	}

	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	c.ExporterProtocol = strings.ToLower(strings.TrimSpace(c.ExporterProtocol))
	if c.ExporterProtocol == "" {
		c.ExporterProtocol = defaultExporterProtocol
	}
	if c.TracesSampler == "" {
		c.TracesSampler = "always_on"
	}
	if c.MetricExportInterval <= 0 {
		c.MetricExportInterval = defaultMetricInterval
	}
	if c.ResourceAttributes == nil {
		c.ResourceAttributes = make(map[string]string)
	}
	if _, ok := c.ResourceAttributes[resourceServiceNameKey]; !ok {
		c.ResourceAttributes[resourceServiceNameKey] = c.ServiceName
	}

	if !c.Enabled {
		return nil
	}

	ep, err := resolveEndpoint(c.ExporterProtocol, c.ExporterEndpoint)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	c.endpoint = ep

	switch strings.ToLower(c.TracesSampler) {
	case "always_on", "always_off", "parentbased_always_on":
	case "traceidratio", "parentbased_traceidratio":
		if c.TracesSamplerArg <= 0 || c.TracesSamplerArg > 1 {
			return fmt.Errorf("observability: sampler %s needs an argument in (0, 1], got %v", c.TracesSampler, c.TracesSamplerArg)
		}
	default:
		return fmt.Errorf("observability: unsupported traces sampler %q", c.TracesSampler)
	}

	return nil
}

// parseResourceAttributes reads the OTEL_RESOURCE_ATTRIBUTES format:
// comma separated key=value pairs with percent-encoded values.
func parseResourceAttributes(input string) (map[string]string, error) {
	attributes := make(map[string]string)
	for _, pair := range strings.Split(input, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid resource attribute %q", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("resource attribute key cannot be empty")
		}

		decoded, err := url.PathUnescape(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("resource attribute %s: %w", key, err)
		}
		attributes[key] = decoded
	}
	return attributes, nil
}
