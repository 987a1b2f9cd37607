package registry

import (
	"log/slog"

	"github.com/meigma/dicomblob/registry/oras"
)

// Option configures a Client.
type Option func(*Client)

// WithOCIClient sets the low-level OCI client. Pass-through ORAS options
// are ignored when this is set.
func WithOCIClient(oci OCIClient) Option {
	return func(c *Client) {
		c.oci = oci
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPlainHTTP enables plain HTTP (no TLS) for registries.
func WithPlainHTTP(enabled bool) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithPlainHTTP(enabled))
	}
}

// WithDockerConfig reads credentials from ~/.docker/config.json.
func WithDockerConfig() Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithDockerConfig())
	}
}

// WithStaticCredentials sets a username and password for registry.
func WithStaticCredentials(registry, username, password string) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithStaticCredentials(registry, username, password))
	}
}

// WithStaticToken sets a bearer token for registry.
func WithStaticToken(registry, token string) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithStaticToken(registry, token))
	}
}

// WithAnonymous disables authentication.
func WithAnonymous() Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithAnonymous())
	}
}

// WithUserAgent sets the User-Agent header for registry requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithUserAgent(ua))
	}
}
