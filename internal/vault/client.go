// Package vault loads exchange credentials from HashiCorp Vault. When Vault
// is disabled the credentials come from the config (already merged with
// environment overrides), so live trading never requires secrets in a file.
package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/config"
)

// Credentials are the exchange API keys.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// Client reads secrets from Vault KV v2.
type Client struct {
	client *api.Client
	cfg    config.VaultConfig
	logger zerolog.Logger
}

// NewClient connects to Vault. Call only when Vault is enabled.
func NewClient(cfg config.VaultConfig, logger zerolog.Logger) (*Client, error) {
	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "vault").Logger(),
	}, nil
}

// ExchangeCredentials reads the API key pair from the configured secret
// path.
func (c *Client) ExchangeCredentials(ctx context.Context) (*Credentials, error) {
	secret, err := c.client.KVv2("secret").Get(ctx, c.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("reading secret %s: %w", c.cfg.Secret, err)
	}

	creds := &Credentials{}
	if v, ok := secret.Data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := secret.Data["secret_key"].(string); ok {
		creds.SecretKey = v
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("secret %s is missing api_key or secret_key", c.cfg.Secret)
	}

	c.logger.Info().Str("path", c.cfg.Secret).Msg("Loaded exchange credentials from Vault")
	return creds, nil
}

// Load resolves credentials from Vault when enabled, otherwise from the
// config itself.
func Load(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Credentials, error) {
	if !cfg.Vault.Enabled {
		return &Credentials{
			APIKey:    cfg.Exchange.APIKey,
			SecretKey: cfg.Exchange.SecretKey,
		}, nil
	}

	client, err := NewClient(cfg.Vault, logger)
	if err != nil {
		return nil, err
	}
	return client.ExchangeCredentials(ctx)
}
