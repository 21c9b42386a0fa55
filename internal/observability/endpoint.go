package observability

import (
	"fmt"
	"net/url"
	"strings"
)

// endpoint is an OTLP collector address resolved for one protocol.
type endpoint struct {
	protocol string
	// base is the collector URL for http/protobuf, host:port for grpc
	base     string
	insecure bool
}

func resolveEndpoint(protocol, raw string) (*endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("OTLP exporter endpoint is required when OpenTelemetry is enabled")
	}

	switch protocol {
	case defaultExporterProtocol:
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid OTLP exporter endpoint: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, fmt.Errorf("OTLP exporter endpoint must use http or https with http/protobuf, got %q", raw)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("OTLP exporter endpoint must include a host")
		}
		return &endpoint{protocol: protocol, base: raw, insecure: parsed.Scheme == "http"}, nil

	case protocolGRPC:
		if !strings.Contains(raw, "://") {
			if !strings.Contains(raw, ":") {
				return nil, fmt.Errorf("OTLP exporter endpoint should be host:port with grpc, got %q", raw)
			}
			return &endpoint{protocol: protocol, base: raw, insecure: true}, nil
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid OTLP exporter endpoint for grpc: %w", err)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("OTLP exporter endpoint must include a host")
		}
		switch parsed.Scheme {
		case "http", "grpc":
			return &endpoint{protocol: protocol, base: parsed.Host, insecure: true}, nil
		case "https", "grpcs":
			return &endpoint{protocol: protocol, base: parsed.Host}, nil
		default:
			return nil, fmt.Errorf("unsupported grpc endpoint scheme %q", parsed.Scheme)
		}

	default:
		return nil, fmt.Errorf("unsupported OTLP exporter protocol %q", protocol)
	}
}

// signalURL appends the per-signal path (/v1/traces, /v1/metrics) to an
// http/protobuf collector URL unless it is already present.
func (e *endpoint) signalURL(signal string) (string, error) {
	parsed, err := url.Parse(e.base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	suffix := "/v1/" + signal
	trimmed := strings.TrimSuffix(parsed.Path, "/")
	if !strings.HasSuffix(trimmed, suffix) {
		trimmed += suffix
	}
	parsed.Path = trimmed
	return parsed.String(), nil
}
