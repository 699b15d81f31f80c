package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

const (
	defaultHTTPTimeout  = 120 * time.Second
	defaultCodeDxPage   = 100
	defaultVaultAuth    = "token"
	defaultAppRoleMount = "approle"

	redactedValue = "[redacted]"
)

// Env keys read by Load.
const (
	EnvPolarisBaseURL       = "POLARIS_BASE_URL"
	EnvCodeDxBaseURL        = "CODEDX_BASE_URL"
	EnvPolarisToken         = "POLARIS_PAT_TOKEN"
	EnvCodeDxToken          = "CODEDX_PAT_TOKEN"
	EnvPolarisApplicationID = "POLARIS_APPLICATION_ID"
	EnvCodeDxProjectID      = "CODEDX_PROJECT_ID"
)

type Config struct {
	PolarisBaseURL       string
	PolarisToken         string
	PolarisApplicationID string

	CodeDxBaseURL       string
	CodeDxToken         string
	CodeDxProjectID     string
	CodeDxPageSize      int
	CodeDxSwappedPaging bool

	HTTPTimeout     time.Duration
	MetricsAddr     string
	MetricsTextfile string

	Vault VaultConfig
}

// VaultConfig is only consulted when a token value is a vault: reference.
type VaultConfig struct {
	Address         string
	Namespace       string
	AuthType        string
	Token           string
	AppRoleMount    string
	AppRoleRoleID   string
	AppRoleSecretID string
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		PolarisBaseURL:       trimBaseURL(os.Getenv(EnvPolarisBaseURL)),
		PolarisToken:         strings.TrimSpace(os.Getenv(EnvPolarisToken)),
		PolarisApplicationID: strings.TrimSpace(os.Getenv(EnvPolarisApplicationID)),
		CodeDxBaseURL:        trimBaseURL(os.Getenv(EnvCodeDxBaseURL)),
		CodeDxToken:          strings.TrimSpace(os.Getenv(EnvCodeDxToken)),
		CodeDxProjectID:      strings.TrimSpace(os.Getenv(EnvCodeDxProjectID)),
		CodeDxPageSize:       getenvIntDefault("CODEDX_PAGE_SIZE", defaultCodeDxPage),
		// Code Dx v2022.1.2 swaps offset and limit server side.
		CodeDxSwappedPaging: getenvBoolDefault("CODEDX_SWAPPED_PAGING", true),
		HTTPTimeout:         getenvDurationDefault("HTTP_TIMEOUT", defaultHTTPTimeout),
		MetricsAddr:         strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		MetricsTextfile:     strings.TrimSpace(os.Getenv("METRICS_TEXTFILE")),
		Vault: VaultConfig{
			Address:         strings.TrimSpace(os.Getenv("VAULT_ADDR")),
			Namespace:       strings.TrimSpace(os.Getenv("VAULT_NAMESPACE")),
			AuthType:        strings.ToLower(strings.TrimSpace(getenvDefault("VAULT_AUTH_TYPE", defaultVaultAuth))),
			Token:           strings.TrimSpace(os.Getenv("VAULT_TOKEN")),
			AppRoleMount:    strings.Trim(strings.TrimSpace(getenvDefault("VAULT_APPROLE_MOUNT", defaultAppRoleMount)), "/"),
			AppRoleRoleID:   strings.TrimSpace(os.Getenv("VAULT_APPROLE_ROLE_ID")),
			AppRoleSecretID: strings.TrimSpace(os.Getenv("VAULT_APPROLE_SECRET_ID")),
		},
	}
	return cfg, nil
}

// ValidatePolaris reports every problem with the Polaris settings at once.
func (c Config) ValidatePolaris() error {
	var result *multierror.Error
	if err := validateBaseURL(EnvPolarisBaseURL, c.PolarisBaseURL); err != nil {
		result = multierror.Append(result, err)
	}
	if c.PolarisToken == "" {
		result = multierror.Append(result, requiredErr(EnvPolarisToken))
	}
	if c.PolarisApplicationID == "" {
		result = multierror.Append(result, requiredErr(EnvPolarisApplicationID))
	}
	return result.ErrorOrNil()
}

// ValidateCodeDx reports every problem with the Code Dx settings at once.
func (c Config) ValidateCodeDx() error {
	var result *multierror.Error
	if err := validateBaseURL(EnvCodeDxBaseURL, c.CodeDxBaseURL); err != nil {
		result = multierror.Append(result, err)
	}
	if c.CodeDxToken == "" {
		result = multierror.Append(result, requiredErr(EnvCodeDxToken))
	}
	if c.CodeDxProjectID == "" {
		result = multierror.Append(result, requiredErr(EnvCodeDxProjectID))
	} else if _, err := c.CodeDxParentProjectID(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// CodeDxParentProjectID parses CODEDX_PROJECT_ID; Code Dx project ids are integers.
func (c Config) CodeDxParentProjectID() (int64, error) {
	id, err := strconv.ParseInt(c.CodeDxProjectID, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", EnvCodeDxProjectID, c.CodeDxProjectID)
	}
	return id, nil
}

// Redacted returns the resolved configuration as slog key/value pairs with tokens masked.
func (c Config) Redacted() []any {
	return []any{
		"polaris_base_url", c.PolarisBaseURL,
		"polaris_pat_token", redact(c.PolarisToken),
		"polaris_application_id", c.PolarisApplicationID,
		"codedx_base_url", c.CodeDxBaseURL,
		"codedx_pat_token", redact(c.CodeDxToken),
		"codedx_project_id", c.CodeDxProjectID,
		"codedx_page_size", c.CodeDxPageSize,
		"codedx_swapped_paging", c.CodeDxSwappedPaging,
		"http_timeout", c.HTTPTimeout.String(),
	}
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "vault:") {
		return v
	}
	return redactedValue
}

func requiredErr(key string) error {
	return fmt.Errorf("%s is required", key)
}

func validateBaseURL(key, raw string) error {
	if raw == "" {
		return requiredErr(key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}

func trimBaseURL(v string) string {
	return strings.TrimRight(strings.TrimSpace(v), "/")
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "1":
		return true
	case "0":
		return false
	default:
		return def
	}
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
