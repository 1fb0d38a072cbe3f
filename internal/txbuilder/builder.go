// Package txbuilder assembles the unsigned instructions of the medical-record
// program with derived addresses and exact signer and writable flags.
package txbuilder

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/jmerrifield20/MedRecordLedger/internal/program"
)

// Op is one buildable ledger operation.
type Op struct {
	// Name is the instruction name, reported as transaction_type.
	Name        string
	Instruction solana.Instruction
	// Cosigned is true when the Admin authority must sign alongside the
	// fee payer.
	Cosigned bool
	// Patient is the Patient PDA touched by patient operations.
	Patient solana.PublicKey
}

// Builder builds operations for one program deployment whose Admin authority
// is fixed.
type Builder struct {
	programID solana.PublicKey
	authority solana.PublicKey
	admin     solana.PublicKey
	history   solana.PublicKey
}

// New derives the Admin and AuthorityHistory addresses for the deployment.
func New(programID, authority solana.PublicKey) (*Builder, error) {
	admin, _, err := program.AdminAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("derive admin address: %w", err)
	}
	history, _, err := program.HistoryAddress(programID, authority)
	if err != nil {
		return nil, fmt.Errorf("derive history address: %w", err)
	}
	return &Builder{programID: programID, authority: authority, admin: admin, history: history}, nil
}

// ProgramID returns the program address.
func (b *Builder) ProgramID() solana.PublicKey { return b.programID }

// Authority returns the Admin authority the builder signs for.
func (b *Builder) Authority() solana.PublicKey { return b.authority }

// AdminAddress returns the Admin PDA.
func (b *Builder) AdminAddress() solana.PublicKey { return b.admin }

// HistoryAddress returns the AuthorityHistory PDA.
func (b *Builder) HistoryAddress() solana.PublicKey { return b.history }

// PatientAddress derives the Patient PDA for seed.
func (b *Builder) PatientAddress(seed solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := program.PatientAddress(b.programID, b.authority, seed)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive patient address: %w", err)
	}
	return addr, nil
}

// Initialize creates or confirms the Admin account.
func (b *Builder) Initialize(payer solana.PublicKey) (*Op, error) {
	data, err := program.EncodeInstruction(program.InstructionInitialize, nil)
	if err != nil {
		return nil, err
	}
	return &Op{
		Name:     program.InstructionInitialize,
		Cosigned: true,
		Instruction: solana.NewInstruction(b.programID, solana.AccountMetaSlice{
			solana.NewAccountMeta(b.authority, true, true),
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(b.admin, true, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		}, data),
	}, nil
}

// AddReadAuthority grants read access to target.
func (b *Builder) AddReadAuthority(payer, target solana.PublicKey) (*Op, error) {
	return b.authorityOp(program.InstructionAddReadAuthority, payer, target)
}

// AddWriteAuthority grants write access to target.
func (b *Builder) AddWriteAuthority(payer, target solana.PublicKey) (*Op, error) {
	return b.authorityOp(program.InstructionAddWriteAuthority, payer, target)
}

// RemoveReadAuthority revokes read access from target.
func (b *Builder) RemoveReadAuthority(payer, target solana.PublicKey) (*Op, error) {
	return b.authorityOp(program.InstructionRemoveReadAuthority, payer, target)
}

// RemoveWriteAuthority revokes write access from target.
func (b *Builder) RemoveWriteAuthority(payer, target solana.PublicKey) (*Op, error) {
	return b.authorityOp(program.InstructionRemoveWriteAuthority, payer, target)
}

// AuthorityOp builds the authority-management instruction called name.
func (b *Builder) AuthorityOp(name string, payer, target solana.PublicKey) (*Op, error) {
	switch name {
	case program.InstructionAddReadAuthority, program.InstructionAddWriteAuthority,
		program.InstructionRemoveReadAuthority, program.InstructionRemoveWriteAuthority:
		return b.authorityOp(name, payer, target)
	}
	return nil, fmt.Errorf("%q is not an authority instruction", name)
}

func (b *Builder) authorityOp(name string, payer, target solana.PublicKey) (*Op, error) {
	data, err := program.EncodeInstruction(name, &program.AuthorityArgs{Authority: target})
	if err != nil {
		return nil, err
	}
	return &Op{
		Name:     name,
		Cosigned: true,
		Instruction: solana.NewInstruction(b.programID, solana.AccountMetaSlice{
			solana.NewAccountMeta(b.authority, false, true),
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(b.admin, true, false),
			solana.NewAccountMeta(b.history, true, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		}, data),
	}, nil
}

// CreatePatient stores a new encrypted record under seed.
func (b *Builder) CreatePatient(writer, seed solana.PublicKey, encryptedData string) (*Op, error) {
	return b.patientWrite(program.InstructionCreatePatient, writer, seed, encryptedData)
}

// UpdatePatient replaces the encrypted record stored under seed.
func (b *Builder) UpdatePatient(writer, seed solana.PublicKey, encryptedData string) (*Op, error) {
	return b.patientWrite(program.InstructionUpdatePatient, writer, seed, encryptedData)
}

func (b *Builder) patientWrite(name string, writer, seed solana.PublicKey, encryptedData string) (*Op, error) {
	if len(encryptedData) > program.MaxEncryptedDataLen {
		return nil, fmt.Errorf("encrypted data is %d bytes, limit is %d", len(encryptedData), program.MaxEncryptedDataLen)
	}
	patient, err := b.PatientAddress(seed)
	if err != nil {
		return nil, err
	}
	data, err := program.EncodeInstruction(name, &program.PatientArgs{EncryptedData: encryptedData})
	if err != nil {
		return nil, err
	}
	return &Op{
		Name:    name,
		Patient: patient,
		Instruction: solana.NewInstruction(b.programID, solana.AccountMetaSlice{
			solana.NewAccountMeta(patient, true, false),
			solana.NewAccountMeta(seed, false, false),
			solana.NewAccountMeta(writer, true, true),
			solana.NewAccountMeta(b.admin, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		}, data),
	}, nil
}

// GetPatient records an integrity-checked read of the record under seed.
func (b *Builder) GetPatient(reader, seed solana.PublicKey) (*Op, error) {
	patient, err := b.PatientAddress(seed)
	if err != nil {
		return nil, err
	}
	data, err := program.EncodeInstruction(program.InstructionGetPatient, nil)
	if err != nil {
		return nil, err
	}
	return &Op{
		Name:    program.InstructionGetPatient,
		Patient: patient,
		Instruction: solana.NewInstruction(b.programID, solana.AccountMetaSlice{
			solana.NewAccountMeta(patient, false, false),
			solana.NewAccountMeta(seed, false, false),
			solana.NewAccountMeta(reader, false, true),
			solana.NewAccountMeta(b.admin, false, false),
		}, data),
	}, nil
}
