package registry

import (
	"net/http"

	"github.com/findings-relay/findings-relay/internal/config"
)

// BuildOptions are the process-level knobs a definition may apply to its integration.
type BuildOptions struct {
	HTTP *http.Client
}

// ConnectorDefinition describes a vendor and how to build its integration from configuration.
type ConnectorDefinition interface {
	Kind() string        // e.g., "polaris", "codedx"
	DisplayName() string // e.g., "Polaris", "Code Dx"

	ValidateConfig(cfg config.Config) error
	NewIntegration(cfg config.Config, opts BuildOptions) (Integration, error)
}
