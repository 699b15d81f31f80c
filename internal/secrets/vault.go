package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/findings-relay/findings-relay/internal/config"
	vaultapi "github.com/hashicorp/vault/api"
)

const (
	vaultAuthTypeToken   = "token"
	vaultAuthTypeAppRole = "approle"

	vaultTimeout = 30 * time.Second
)

// secretReader is the slice of the Vault API the resolver needs.
type secretReader interface {
	Read(ctx context.Context, path string) (map[string]any, error)
}

type vaultClient struct {
	client *vaultapi.Client
}

func newVaultClient(cfg config.VaultConfig) (secretReader, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, errors.New("VAULT_ADDR is required to resolve vault: references")
	}
	authType := strings.ToLower(strings.TrimSpace(cfg.AuthType))
	if authType == "" {
		authType = vaultAuthTypeToken
	}

	vcfg := vaultapi.DefaultConfig()
	vcfg.Address = address
	vcfg.HttpClient = &http.Client{Timeout: vaultTimeout}
	client, err := vaultapi.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		client.SetNamespace(ns)
	}

	switch authType {
	case vaultAuthTypeToken:
		token := strings.TrimSpace(cfg.Token)
		if token == "" {
			return nil, errors.New("VAULT_TOKEN is required for token auth")
		}
		client.SetToken(token)
	case vaultAuthTypeAppRole:
		roleID := strings.TrimSpace(cfg.AppRoleRoleID)
		secretID := strings.TrimSpace(cfg.AppRoleSecretID)
		mount := strings.Trim(strings.TrimSpace(cfg.AppRoleMount), "/")
		if mount == "" {
			mount = "approle"
		}
		if roleID == "" {
			return nil, errors.New("VAULT_APPROLE_ROLE_ID is required for approle auth")
		}
		if secretID == "" {
			return nil, errors.New("VAULT_APPROLE_SECRET_ID is required for approle auth")
		}
		loginPath := "auth/" + mount + "/login"
		secret, err := client.Logical().Write(loginPath, map[string]any{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		if err != nil {
			return nil, fmt.Errorf("vault approle login at %s: %w", loginPath, err)
		}
		if secret == nil || secret.Auth == nil || strings.TrimSpace(secret.Auth.ClientToken) == "" {
			return nil, errors.New("vault approle login succeeded without client token")
		}
		client.SetToken(secret.Auth.ClientToken)
	default:
		return nil, fmt.Errorf("VAULT_AUTH_TYPE %q is invalid; use token or approle", cfg.AuthType)
	}
	return &vaultClient{client: client}, nil
}

func (c *vaultClient) Read(ctx context.Context, path string) (map[string]any, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault read %s: no secret at path", path)
	}
	return secret.Data, nil
}
