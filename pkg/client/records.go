package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Authority operation names, as used in prepare paths.
const (
	AddReadAuthority     = "add-read-authority"
	AddWriteAuthority    = "add-write-authority"
	RemoveReadAuthority  = "remove-read-authority"
	RemoveWriteAuthority = "remove-write-authority"
)

// PatientData is the plaintext patient record.
type PatientData struct {
	Name           string `json:"name,omitempty"`
	BloodType      string `json:"blood_type,omitempty"`
	PreviousReport string `json:"previous_report,omitempty"`
	PhoneNumber    string `json:"ph_no,omitempty"`
	File           string `json:"file,omitempty"`
}

// PatientRef identifies a record by seed or address.
type PatientRef struct {
	Seed    string `json:"patient_seed,omitempty"`
	Address string `json:"patient_address,omitempty"`
}

// PatientResult describes a confirmed patient transaction.
type PatientResult struct {
	Signature      string
	PatientAddress string
	PatientSeed    string
}

// ViewToken is a short-lived view link.
type ViewToken struct {
	ViewURL        string    `json:"view_url"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
	PatientAddress string    `json:"patient_address"`
}

// PatientView is a decrypted record.
type PatientView struct {
	PatientAddress string      `json:"patient_address"`
	PatientData    PatientData `json:"patient_data"`
}

// Initialize creates the Admin account. wallet pays and must be a
// configured operator.
func (c *Client) Initialize(ctx context.Context, wallet solana.PrivateKey) (string, error) {
	sig, _, err := c.Execute(ctx, wallet, "initialize", func(ctx context.Context) (*PreparedTransaction, error) {
		return c.Prepare(ctx, "initialize", nil)
	})
	return sig, err
}

// ChangeAuthority grants or revokes target. op is one of the authority
// operation constants.
func (c *Client) ChangeAuthority(ctx context.Context, wallet solana.PrivateKey, op string, target solana.PublicKey) (string, error) {
	field := "new_authority"
	if op == RemoveReadAuthority || op == RemoveWriteAuthority {
		field = "authority_to_remove"
	}
	sig, _, err := c.Execute(ctx, wallet, op, func(ctx context.Context) (*PreparedTransaction, error) {
		return c.Prepare(ctx, op, map[string]string{
			"user_pubkey": wallet.PublicKey().String(),
			field:         target.String(),
		})
	})
	return sig, err
}

// CreatePatient stores a new encrypted record. A non-empty attachment is
// pinned by the gateway and referenced from data.File.
func (c *Client) CreatePatient(ctx context.Context, wallet solana.PrivateKey, data PatientData, attachment []byte) (*PatientResult, error) {
	sig, p, err := c.Execute(ctx, wallet, "create-patient", func(ctx context.Context) (*PreparedTransaction, error) {
		return c.Prepare(ctx, "create-patient", map[string]any{
			"user_pubkey":  wallet.PublicKey().String(),
			"patient_data": data,
			"attachment":   attachment,
		})
	})
	if err != nil {
		return nil, err
	}
	return &PatientResult{Signature: sig, PatientAddress: p.PatientAddress, PatientSeed: p.PatientSeed}, nil
}

// UpdatePatient replaces the record at ref.
func (c *Client) UpdatePatient(ctx context.Context, wallet solana.PrivateKey, ref PatientRef, data PatientData, attachment []byte) (*PatientResult, error) {
	sig, p, err := c.Execute(ctx, wallet, "update-patient", func(ctx context.Context) (*PreparedTransaction, error) {
		return c.Prepare(ctx, "update-patient", map[string]any{
			"user_pubkey":     wallet.PublicKey().String(),
			"patient_seed":    ref.Seed,
			"patient_address": ref.Address,
			"patient_data":    data,
			"attachment":      attachment,
		})
	})
	if err != nil {
		return nil, err
	}
	return &PatientResult{Signature: sig, PatientAddress: p.PatientAddress, PatientSeed: p.PatientSeed}, nil
}

// ReadPatient records an integrity-checked read of ref on the ledger.
func (c *Client) ReadPatient(ctx context.Context, wallet solana.PrivateKey, ref PatientRef) (string, error) {
	sig, _, err := c.Execute(ctx, wallet, "get-patient", func(ctx context.Context) (*PreparedTransaction, error) {
		return c.Prepare(ctx, "get-patient", map[string]any{
			"user_pubkey":     wallet.PublicKey().String(),
			"patient_seed":    ref.Seed,
			"patient_address": ref.Address,
		})
	})
	return sig, err
}

// RequestView asks for a view link to ref. The session wallet must be a
// read authority.
func (c *Client) RequestView(ctx context.Context, ref PatientRef) (*ViewToken, error) {
	var out ViewToken
	if err := c.call(ctx, http.MethodPost, "/api/patients/get", ref, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// View redeems a view token.
func (c *Client) View(ctx context.Context, token string) (*PatientView, error) {
	var out PatientView
	if err := c.call(ctx, http.MethodGet, "/api/patients/view/"+url.PathEscape(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
