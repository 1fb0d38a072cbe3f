package keys

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
)

// VaultSource reads the encryption key from a Vault KV secret.
type VaultSource struct {
	client *api.Client
	path   string
	field  string
}

// NewVaultSource creates a VaultSource reading field from the secret at path
// (e.g. "secret/data/medrecord").
func NewVaultSource(address, token, path, field string) (*VaultSource, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	if field == "" {
		field = "encryption_key"
	}
	return &VaultSource{client: client, path: strings.Trim(path, "/"), field: field}, nil
}

// EncryptionKey fetches and decodes the key. Both KV v1 and KV v2 secret
// shapes are accepted.
func (v *VaultSource) EncryptionKey(ctx context.Context) ([]byte, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return nil, fmt.Errorf("read vault secret %s: %w", v.path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault secret %s not found", v.path)
	}
	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}
	raw, ok := data[v.field].(string)
	if !ok {
		return nil, fmt.Errorf("vault secret %s has no string field %q", v.path, v.field)
	}
	return ParseEncryptionKey(raw)
}
