package codedx

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
	return "Code Dx"
}

func (d *Definition) ValidateConfig(cfg config.Config) error {
	return cfg.ValidateCodeDx()
}

func (d *Definition) NewIntegration(cfg config.Config, opts registry.BuildOptions) (registry.Integration, error) {
	if err := d.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	parentID, err := cfg.CodeDxParentProjectID()
	if err != nil {
		return nil, err
	}
	client, err := New(cfg.CodeDxBaseURL, cfg.CodeDxToken, opts.HTTP, Options{
		PageSize:      cfg.CodeDxPageSize,
		SwappedPaging: cfg.CodeDxSwappedPaging,
	})
	if err != nil {
		return nil, err
	}
	return NewIntegration(client, parentID), nil
}
