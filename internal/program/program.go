// Package program implements the medical-record ledger program: the on-chain
// state machine that owns the Admin, AuthorityHistory and Patient accounts.
//
// The same code backs the in-memory ledger used by tests and local runs, and
// defines the wire formats (discriminators, Borsh bodies, PDA seeds) that the
// transaction builder and the account readers share with the deployed program.
package program

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// PDA seed prefixes.
const (
	AdminSeed   = "admin"
	HistorySeed = "history"
	PatientSeed = "patient"
)

// Capacities enforced by the program.
const (
	MaxAuthorities      = 16
	MaxHistoryEntries   = 32
	MaxEncryptedDataLen = 2048
)

// Discriminator is the 8-byte tag that prefixes every account body and every
// instruction payload.
type Discriminator [8]byte

func discriminatorFor(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

// Account discriminators.
var (
	AdminDiscriminator            = discriminatorFor("account", "Admin")
	AuthorityHistoryDiscriminator = discriminatorFor("account", "AuthorityHistory")
	PatientDiscriminator          = discriminatorFor("account", "Patient")
)

// Instruction names as they appear in transaction_type fields and logs.
const (
	InstructionInitialize           = "initialize"
	InstructionAddReadAuthority     = "add_read_authority"
	InstructionAddWriteAuthority    = "add_write_authority"
	InstructionRemoveReadAuthority  = "remove_read_authority"
	InstructionRemoveWriteAuthority = "remove_write_authority"
	InstructionCreatePatient        = "create_patient"
	InstructionUpdatePatient        = "update_patient"
	InstructionGetPatient           = "get_patient"
)

var instructionNames = []string{
	InstructionInitialize,
	InstructionAddReadAuthority,
	InstructionAddWriteAuthority,
	InstructionRemoveReadAuthority,
	InstructionRemoveWriteAuthority,
	InstructionCreatePatient,
	InstructionUpdatePatient,
	InstructionGetPatient,
}

var (
	byName          = map[string]Discriminator{}
	byDiscriminator = map[Discriminator]string{}
)

func init() {
	for _, name := range instructionNames {
		d := discriminatorFor("global", name)
		byName[name] = d
		byDiscriminator[d] = name
	}
}

// InstructionDiscriminator returns the discriminator of the named instruction.
func InstructionDiscriminator(name string) (Discriminator, bool) {
	d, ok := byName[name]
	return d, ok
}

// InstructionName resolves a discriminator back to an instruction name.
func InstructionName(d Discriminator) (string, bool) {
	name, ok := byDiscriminator[d]
	return name, ok
}

// Cosigned reports whether the named instruction carries the Admin authority
// as a signer, i.e. whether the service key must co-sign it.
func Cosigned(name string) bool {
	switch name {
	case InstructionInitialize,
		InstructionAddReadAuthority, InstructionAddWriteAuthority,
		InstructionRemoveReadAuthority, InstructionRemoveWriteAuthority:
		return true
	}
	return false
}

// DataHash is the digest stored alongside a patient's encrypted data.
func DataHash(encryptedData string) [32]byte {
	return sha256.Sum256([]byte(encryptedData))
}

// AdminAddress derives the Admin PDA.
func AdminAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(AdminSeed)}, programID)
}

// HistoryAddress derives the AuthorityHistory PDA of the given admin authority.
func HistoryAddress(programID, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(HistorySeed), authority.Bytes()}, programID)
}

// PatientAddress derives the Patient PDA for a seed under the admin authority.
func PatientAddress(programID, authority, seed solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(PatientSeed), authority.Bytes(), seed.Bytes()}, programID)
}
