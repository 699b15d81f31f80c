// Package secrets resolves token values that point into Vault instead of carrying the secret.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/findings-relay/findings-relay/internal/config"
)

const referencePrefix = "vault:"

// Reference is a parsed "vault:<path>#<field>" value.
type Reference struct {
	Path  string
	Field string
}

// IsReference reports whether value should be looked up in Vault.
func IsReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), referencePrefix)
}

func ParseReference(value string) (Reference, error) {
	raw := strings.TrimSpace(value)
	if !strings.HasPrefix(raw, referencePrefix) {
		return Reference{}, fmt.Errorf("%q is not a vault reference", value)
	}
	path, field, ok := strings.Cut(strings.TrimPrefix(raw, referencePrefix), "#")
	path = strings.Trim(strings.TrimSpace(path), "/")
	field = strings.TrimSpace(field)
	if !ok || path == "" || field == "" {
		return Reference{}, fmt.Errorf("vault reference %q must look like vault:<path>#<field>", value)
	}
	return Reference{Path: path, Field: field}, nil
}

// Resolver reads references from Vault. The client is created on first use, so
// configurations without references never need Vault settings.
type Resolver struct {
	cfg       config.VaultConfig
	newReader func(config.VaultConfig) (secretReader, error)

	mu     sync.Mutex
	reader secretReader
}

func NewResolver(cfg config.VaultConfig) *Resolver {
	return &Resolver{cfg: cfg, newReader: newVaultClient}
}

// Resolve returns plain values unchanged and looks references up in Vault.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	ref, err := ParseReference(value)
	if err != nil {
		return "", err
	}
	reader, err := r.client()
	if err != nil {
		return "", err
	}
	data, err := reader.Read(ctx, ref.Path)
	if err != nil {
		return "", err
	}
	return lookupField(data, ref)
}

// ResolveConfig resolves both vendor tokens of cfg.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg config.Config) (config.Config, error) {
	var err error
	if cfg.PolarisToken, err = r.Resolve(ctx, cfg.PolarisToken); err != nil {
		return cfg, fmt.Errorf("%s: %w", config.EnvPolarisToken, err)
	}
	if cfg.CodeDxToken, err = r.Resolve(ctx, cfg.CodeDxToken); err != nil {
		return cfg, fmt.Errorf("%s: %w", config.EnvCodeDxToken, err)
	}
	return cfg, nil
}

func (r *Resolver) client() (secretReader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader != nil {
		return r.reader, nil
	}
	reader, err := r.newReader(r.cfg)
	if err != nil {
		return nil, err
	}
	r.reader = reader
	return reader, nil
}

// lookupField reads field from a KV v1 payload or from the nested data of a KV v2 payload.
func lookupField(data map[string]any, ref Reference) (string, error) {
	if nested, ok := data["data"].(map[string]any); ok {
		if _, hasMeta := data["metadata"]; hasMeta {
			data = nested
		}
	}
	raw, ok := data[ref.Field]
	if !ok {
		return "", fmt.Errorf("vault secret %s has no field %q", ref.Path, ref.Field)
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("vault secret %s field %q is not a non-empty string", ref.Path, ref.Field)
	}
	return strings.TrimSpace(value), nil
}
