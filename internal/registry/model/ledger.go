package model

import (
	"encoding/json"
	"time"

	"github.com/jmerrifield20/MedRecordLedger/internal/patientdata"
)

// AuthRequest is the body of POST /api/auth.
type AuthRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
	Signature string `json:"signature"  binding:"required"`
	Timestamp int64  `json:"timestamp"  binding:"required"`
}

// AuthResponse carries the session token.
type AuthResponse struct {
	Token     string    `json:"token"`
	PublicKey string    `json:"public_key"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

// AddAuthorityRequest asks for an authority to be granted. UserPubkey is
// filled from the session.
type AddAuthorityRequest struct {
	UserPubkey   string `json:"user_pubkey"`
	NewAuthority string `json:"new_authority" binding:"required"`
}

// RemoveAuthorityRequest asks for an authority to be revoked.
type RemoveAuthorityRequest struct {
	UserPubkey        string `json:"user_pubkey"`
	AuthorityToRemove string `json:"authority_to_remove" binding:"required"`
}

// InitializeRequest asks for the Admin account to be created.
type InitializeRequest struct {
	UserPubkey string `json:"user_pubkey"`
}

// CreatePatientRequest carries the plaintext record. Attachment, when set,
// is pinned and its content identifier stored in PatientData.File.
type CreatePatientRequest struct {
	UserPubkey  string              `json:"user_pubkey"`
	PatientData patientdata.Payload `json:"patient_data"`
	Attachment  []byte              `json:"attachment,omitempty"`
}

// UpdatePatientRequest replaces an existing record. Either PatientSeed or
// PatientAddress identifies it.
type UpdatePatientRequest struct {
	UserPubkey     string              `json:"user_pubkey"`
	PatientSeed    string              `json:"patient_seed,omitempty"`
	PatientAddress string              `json:"patient_address,omitempty"`
	PatientData    patientdata.Payload `json:"patient_data"`
	Attachment     []byte              `json:"attachment,omitempty"`
}

// PatientLookupRequest identifies a record by seed or address.
type PatientLookupRequest struct {
	UserPubkey     string `json:"user_pubkey"`
	PatientSeed    string `json:"patient_seed,omitempty"`
	PatientAddress string `json:"patient_address,omitempty"`
}

// PreparedTransaction is returned by every prepare endpoint.
type PreparedTransaction struct {
	SerializedTransaction string          `json:"serialized_transaction"`
	TransactionType       string          `json:"transaction_type"`
	Metadata              json.RawMessage `json:"metadata,omitempty"`
	Blockhash             string          `json:"blockhash"`
	LastValidBlockHeight  uint64          `json:"last_valid_block_height"`
}

// PreparedPatientTransaction adds the record location to a prepared patient
// write.
type PreparedPatientTransaction struct {
	PreparedTransaction
	PatientAddress string `json:"patient_address"`
	PatientSeed    string `json:"patient_seed"`
	EncryptedData  string `json:"encrypted_data"`
}

// SubmitTransactionRequest carries a fully signed transaction.
type SubmitTransactionRequest struct {
	SerializedTransaction string `json:"serialized_transaction" binding:"required"`
}

// SubmitTransactionResponse returns the confirmed signature.
type SubmitTransactionResponse struct {
	Signature string `json:"signature"`
}

// ViewTokenResponse is returned by POST /api/patients/get.
type ViewTokenResponse struct {
	ViewURL        string    `json:"view_url"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
	PatientAddress string    `json:"patient_address"`
}

// PatientView is the decrypted record.
type PatientView struct {
	PatientAddress string              `json:"patient_address"`
	PatientData    patientdata.Payload `json:"patient_data"`
}

// AuthoritiesResponse is the decoded Admin account.
type AuthoritiesResponse struct {
	Address          string   `json:"address"`
	Authority        string   `json:"authority"`
	ReadAuthorities  []string `json:"read_authorities"`
	WriteAuthorities []string `json:"write_authorities"`
}

// HistoryEntry is one authority-list mutation.
type HistoryEntry struct {
	Admin     string    `json:"admin"`
	Authority string    `json:"authority"`
	Added     bool      `json:"added"`
	IsRead    bool      `json:"is_read"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryResponse is the decoded AuthorityHistory account.
type HistoryResponse struct {
	Address string         `json:"address"`
	Admin   string         `json:"admin"`
	Entries []HistoryEntry `json:"entries"`
}
