package polaris

import (
	"github.com/findings-relay/findings-relay/internal/config"
	"github.com/findings-relay/findings-relay/internal/connectors/registry"
)

type Definition struct{}

func NewDefinition() *Definition {
	return &Definition{}
}

func (d *Definition) Kind() string {
	return Kind
}

func (d *Definition) DisplayName() string {
	return "Polaris"
}

func (d *Definition) ValidateConfig(cfg config.Config) error {
	return cfg.ValidatePolaris()
}

func (d *Definition) NewIntegration(cfg config.Config, opts registry.BuildOptions) (registry.Integration, error) {
	if err := d.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	client, err := New(cfg.PolarisBaseURL, cfg.PolarisToken, opts.HTTP)
	if err != nil {
		return nil, err
	}
	return NewIntegration(client, cfg.PolarisApplicationID), nil
}
