package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/identity"
)

// DefaultMaxReprepare bounds how often Execute restarts after an expired
// anchor.
const DefaultMaxReprepare = 3

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error %d (%s/%s): %s", e.Status, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error %d (%s): %s", e.Status, e.Kind, e.Message)
}

// IsAnchorExpired reports whether err means the transaction must be
// prepared again.
func IsAnchorExpired(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == "anchor_expired"
}

// Session is the result of Login.
type Session struct {
	Token     string    `json:"token"`
	PublicKey string    `json:"public_key"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

// PreparedTransaction is returned by every prepare call.
type PreparedTransaction struct {
	SerializedTransaction string          `json:"serialized_transaction"`
	TransactionType       string          `json:"transaction_type"`
	Metadata              json.RawMessage `json:"metadata,omitempty"`
	Blockhash             string          `json:"blockhash"`
	LastValidBlockHeight  uint64          `json:"last_valid_block_height"`

	// Set on patient transactions only.
	PatientAddress string `json:"patient_address,omitempty"`
	PatientSeed    string `json:"patient_seed,omitempty"`
	EncryptedData  string `json:"encrypted_data,omitempty"`
}

// Authorities is the current Admin account.
type Authorities struct {
	Address          string   `json:"address"`
	Authority        string   `json:"authority"`
	ReadAuthorities  []string `json:"read_authorities"`
	WriteAuthorities []string `json:"write_authorities"`
}

// HistoryEntry is one authority-list change.
type HistoryEntry struct {
	Admin     string    `json:"admin"`
	Authority string    `json:"authority"`
	Added     bool      `json:"added"`
	IsRead    bool      `json:"is_read"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the authority change log.
type History struct {
	Address string         `json:"address"`
	Admin   string         `json:"admin"`
	Entries []HistoryEntry `json:"entries"`
}

// Client talks to one gateway.
type Client struct {
	base         string
	httpClient   *http.Client
	maxReprepare int
	programID    solana.PublicKey

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a previously issued session token.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithMaxReprepare sets how many times Execute restarts after an expired
// anchor.
func WithMaxReprepare(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("max reprepare must not be negative")
		}
		c.maxReprepare = n
		return nil
	}
}

// WithProgramID makes Execute refuse transactions for any other program.
func WithProgramID(id solana.PublicKey) Option {
	return func(c *Client) error {
		c.programID = id
		return nil
	}
}

// New creates a Client for the gateway at base.
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:         strings.TrimRight(base, "/"),
		httpClient:   &http.Client{Timeout: 90 * time.Second},
		maxReprepare: DefaultMaxReprepare,
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearerToken
}

// Login signs the timestamp challenge with wallet and stores the session
// token for later calls.
func (c *Client) Login(ctx context.Context, wallet solana.PrivateKey) (*Session, error) {
	ts := time.Now().Unix()
	sig, err := wallet.Sign([]byte(identity.LoginMessage(ts)))
	if err != nil {
		return nil, fmt.Errorf("sign login challenge: %w", err)
	}
	var s Session
	err = c.call(ctx, http.MethodPost, "/api/auth", map[string]any{
		"public_key": wallet.PublicKey().String(),
		"signature":  sig.String(),
		"timestamp":  ts,
	}, &s)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.bearerToken = s.Token
	c.mu.Unlock()
	return &s, nil
}

// Authorities returns the current Admin account.
func (c *Client) Authorities(ctx context.Context) (*Authorities, error) {
	var out Authorities
	if err := c.call(ctx, http.MethodGet, "/api/authorities", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the authority change log.
func (c *Client) History(ctx context.Context) (*History, error) {
	var out History
	if err := c.call(ctx, http.MethodGet, "/api/authorities/history", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Prepare calls POST /api/transactions/prepare/<kind>.
func (c *Client) Prepare(ctx context.Context, kind string, body any) (*PreparedTransaction, error) {
	var out PreparedTransaction
	if err := c.call(ctx, http.MethodPost, "/api/transactions/prepare/"+kind, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sign adds wallet's signature to a prepared transaction without altering
// its message. It signs whatever it is given; call Verify first for a
// transaction received from a gateway.
func Sign(serialized string, wallet solana.PrivateKey) (string, error) {
	tx, err := chain.DecodeTransaction(serialized)
	if err != nil {
		return "", err
	}
	if err := chain.SignAs(tx, wallet); err != nil {
		return "", err
	}
	return chain.EncodeTransaction(tx)
}

// Submit relays a fully signed transaction and returns its signature.
func (c *Client) Submit(ctx context.Context, signed string) (string, error) {
	var out struct {
		Signature string `json:"signature"`
	}
	err := c.call(ctx, http.MethodPost, "/api/transactions/submit", map[string]string{
		"serialized_transaction": signed,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Signature, nil
}

// PrepareFunc produces a fresh prepared transaction.
type PrepareFunc func(ctx context.Context) (*PreparedTransaction, error)

// Execute runs prepare, verifies the result against kind, signs with
// wallet and submits. When the gateway reports an expired anchor the cycle
// restarts from prepare.
func (c *Client) Execute(ctx context.Context, wallet solana.PrivateKey, kind string, prepare PrepareFunc) (string, *PreparedTransaction, error) {
	for attempt := 0; ; attempt++ {
		p, err := prepare(ctx)
		if err != nil {
			return "", nil, err
		}
		if err := Verify(p, kind, wallet.PublicKey(), c.programID); err != nil {
			return "", p, err
		}
		signed, err := Sign(p.SerializedTransaction, wallet)
		if err != nil {
			return "", nil, fmt.Errorf("sign %s: %w", p.TransactionType, err)
		}
		sig, err := c.Submit(ctx, signed)
		if err == nil {
			return sig, p, nil
		}
		if !IsAnchorExpired(err) || attempt >= c.maxReprepare {
			return "", p, err
		}
	}
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
