// Package pinning stores patient attachments in IPFS and returns their
// content identifiers.
package pinning

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	shell "github.com/ipfs/go-ipfs-api"
	"go.uber.org/zap"
)

var (
	// ErrDisabled is returned when no pinning backend is configured.
	ErrDisabled = errors.New("attachment pinning is disabled")
	// ErrUnavailable is returned when the IPFS node does not respond.
	ErrUnavailable = errors.New("ipfs node unavailable")
)

// Pinner stores data and returns its content identifier.
type Pinner interface {
	Pin(ctx context.Context, data []byte) (string, error)
}

// IPFSPinner adds content through an IPFS node's HTTP API.
type IPFSPinner struct {
	shell  *shell.Shell
	apiURL string
	logger *zap.Logger
}

// NewIPFSPinner connects to the node API at apiURL (host:port or URL).
func NewIPFSPinner(apiURL string, logger *zap.Logger) *IPFSPinner {
	return &IPFSPinner{shell: shell.NewShell(apiURL), apiURL: apiURL, logger: logger}
}

// Pin implements Pinner. The content is pinned on the node.
func (p *IPFSPinner) Pin(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !p.shell.IsUp() {
		p.logger.Warn("ipfs node unavailable", zap.String("api", p.apiURL))
		return "", ErrUnavailable
	}
	cid, err := p.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	p.logger.Info("attachment pinned", zap.String("cid", cid), zap.Int("bytes", len(data)))
	return cid, nil
}

// Ping reports whether the node answers, for health probes.
func (p *IPFSPinner) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.shell.IsUp() {
		return ErrUnavailable
	}
	return nil
}

// Disabled is the Pinner used when no backend is configured.
type Disabled struct{}

// Pin implements Pinner.
func (Disabled) Pin(context.Context, []byte) (string, error) {
	return "", ErrDisabled
}
