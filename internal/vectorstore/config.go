package vectorstore

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/fyrsmithlabs/ragdex/internal/config"
)

// Points database modes.
const (
	ModeLocal  = "local"
	ModeMemory = "memory"
	ModeRemote = "remote"
)

// Distance metrics accepted by the points database backend.
const (
	DistanceCosine = "COSINE"
	DistanceEuclid = "EUCLID"
	DistanceDot    = "DOT"
)

// DefaultVectorSize is used when the embedder cannot be probed.
const DefaultVectorSize = 768

// Config holds backend configuration. It is decoded from a flat key/value
// map; keys a backend does not use are ignored.
type Config struct {
	// Type is the registered backend name.
	Type string `mapstructure:"type"`

	// CollectionName is the collection every operation targets.
	// Default: "ragdex"
	CollectionName string `mapstructure:"collection_name"`

	// CollectionMetadata is attached to a newly created embedded collection.
	CollectionMetadata map[string]string `mapstructure:"collection_metadata"`

	// Compress enables gzip for embedded store files.
	Compress bool `mapstructure:"compress"`

	// Mode is local, memory or remote (points database only).
	// Default: "local"
	Mode string `mapstructure:"mode"`

	// URL is a remote endpoint such as https://qdrant.example.com:6334.
	// When set it overrides Host and HTTPS.
	URL string `mapstructure:"url"`

	// Host of the remote points database.
	// Default: "localhost"
	Host string `mapstructure:"host"`

	// Port is the REST port. Kept for configuration parity; the remote
	// client speaks gRPC on GRPCPort.
	// Default: 6333
	Port int `mapstructure:"port"`

	// GRPCPort of the remote points database.
	// Default: 6334
	GRPCPort int `mapstructure:"grpc_port"`

	// APIKey authenticates against a remote points database.
	APIKey config.Secret `mapstructure:"api_key"`

	// PreferGRPC mirrors the upstream client option. The remote client is
	// gRPC only, so false only changes a log line.
	PreferGRPC bool `mapstructure:"prefer_grpc"`

	// HTTPS enables TLS for the remote client.
	HTTPS bool `mapstructure:"https"`

	// Distance is COSINE, EUCLID or DOT.
	// Default: "COSINE"
	Distance string `mapstructure:"distance"`

	// VectorSize skips embedder probing when > 0.
	VectorSize int `mapstructure:"vector_size"`

	// RetryAttempts retries transient gRPC failures of the remote client.
	// Default: 0, calls are not retried.
	RetryAttempts int `mapstructure:"retry_attempts"`

	// Extra collects unknown keys.
	Extra map[string]any `mapstructure:",remain"`
}

// DecodeConfig decodes a flat key/value map into a Config. Values are
// weakly typed, so "6334" decodes into an int field.
func DecodeConfig(values map[string]any) (Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := decoder.Decode(values); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.CollectionName == "" {
		c.CollectionName = "ragdex"
	}
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6333
	}
	if c.GRPCPort == 0 {
		c.GRPCPort = 6334
	}
	if c.Distance == "" {
		c.Distance = DistanceCosine
	}
	c.Mode = strings.ToLower(c.Mode)
	c.Distance = strings.ToUpper(c.Distance)
}

// validateCollection checks the keys every backend uses.
func (c *Config) validateCollection() error {
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection_name is required", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the points database configuration. Call ApplyDefaults
// first.
func (c *Config) Validate() error {
	if err := c.validateCollection(); err != nil {
		return err
	}
	switch c.Mode {
	case ModeLocal, ModeMemory, ModeRemote:
	default:
		return fmt.Errorf("%w: invalid mode %q: must be local, memory or remote", ErrInvalidConfig, c.Mode)
	}
	switch c.Distance {
	case DistanceCosine, DistanceEuclid, DistanceDot:
	default:
		return fmt.Errorf("%w: invalid distance %q: must be COSINE, EUCLID or DOT", ErrInvalidConfig, c.Distance)
	}
	if c.VectorSize < 0 {
		return fmt.Errorf("%w: vector_size cannot be negative", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry_attempts cannot be negative", ErrInvalidConfig)
	}
	for name, port := range map[string]int{"port": c.Port, "grpc_port": c.GRPCPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%w: invalid %s %d", ErrInvalidConfig, name, port)
		}
	}
	if c.URL != "" {
		if _, _, _, err := parseEndpoint(c.URL); err != nil {
			return err
		}
	}
	return nil
}

// parseEndpoint splits http(s)://host[:port] into its parts. port is 0
// when the URL has none.
func parseEndpoint(raw string) (host string, port int, tls bool, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: invalid url %q: %v", ErrInvalidConfig, raw, err)
	}
	switch u.Scheme {
	case "http":
	case "https":
		tls = true
	default:
		return "", 0, false, fmt.Errorf("%w: url %q must use http or https", ErrInvalidConfig, raw)
	}
	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("%w: url %q has no host", ErrInvalidConfig, raw)
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("%w: url %q has invalid port", ErrInvalidConfig, raw)
		}
	}
	return host, port, tls, nil
}
