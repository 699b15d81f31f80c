package main

import (
	"github.com/findings-relay/findings-relay/internal/connectors/codedx"
	"github.com/findings-relay/findings-relay/internal/connectors/polaris"
	"github.com/findings-relay/findings-relay/internal/connectors/registry"
)

// buildConnectorRegistry registers the vendors in the order a full run visits them.
func buildConnectorRegistry() (*registry.ConnectorRegistry, error) {
	reg := registry.NewRegistry()
	if err := reg.Register(polaris.NewDefinition()); err != nil {
		return nil, err
	}
	if err := reg.Register(codedx.NewDefinition()); err != nil {
		return nil, err
	}
	return reg, nil
}
