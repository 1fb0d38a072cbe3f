package client

import (
	"encoding/json"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
)

// ErrUnexpectedTransaction is returned when a prepared transaction does not
// match the operation that was requested. Nothing is signed in that case.
var ErrUnexpectedTransaction = errors.New("prepared transaction does not match request")

// kindInstructions maps prepare paths to the instruction they must build.
var kindInstructions = map[string]string{
	"initialize":         program.InstructionInitialize,
	AddReadAuthority:     program.InstructionAddReadAuthority,
	AddWriteAuthority:    program.InstructionAddWriteAuthority,
	RemoveReadAuthority:  program.InstructionRemoveReadAuthority,
	RemoveWriteAuthority: program.InstructionRemoveWriteAuthority,
	"create-patient":     program.InstructionCreatePatient,
	"update-patient":     program.InstructionUpdatePatient,
	"get-patient":        program.InstructionGetPatient,
}

type preparedMetadata struct {
	UserPubkey        string `json:"user_pubkey"`
	NewAuthority      string `json:"new_authority"`
	AuthorityToRemove string `json:"authority_to_remove"`
	PatientAddress    string `json:"patient_address"`
	PatientSeed       string `json:"patient_seed"`
}

// Verify checks that p carries exactly one instruction of the operation
// kind, paid by payer and, when programID is non-zero, addressed to that
// program. The echoed metadata must agree with the instruction.
func Verify(p *PreparedTransaction, kind string, payer, programID solana.PublicKey) error {
	want, ok := kindInstructions[kind]
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", ErrUnexpectedTransaction, kind)
	}
	if p.TransactionType != want {
		return fmt.Errorf("%w: type %q, requested %q", ErrUnexpectedTransaction, p.TransactionType, want)
	}

	tx, err := chain.DecodeTransaction(p.SerializedTransaction)
	if err != nil {
		return err
	}
	signers := chain.RequiredSigners(tx)
	if len(signers) == 0 || !signers[0].Equals(payer) {
		return fmt.Errorf("%w: fee payer is not %s", ErrUnexpectedTransaction, payer)
	}
	ixs, err := chain.Decompile(tx)
	if err != nil {
		return err
	}
	if len(ixs) != 1 {
		return fmt.Errorf("%w: %d instructions", ErrUnexpectedTransaction, len(ixs))
	}
	ix := ixs[0]
	if !programID.IsZero() && !ix.ProgramID.Equals(programID) {
		return fmt.Errorf("%w: instruction targets program %s", ErrUnexpectedTransaction, ix.ProgramID)
	}
	name, args, err := program.DecodeInstruction(ix.Data)
	if err != nil || name != want {
		return fmt.Errorf("%w: instruction is not %s", ErrUnexpectedTransaction, want)
	}

	var meta preparedMetadata
	if len(p.Metadata) > 0 {
		if err := json.Unmarshal(p.Metadata, &meta); err != nil {
			return fmt.Errorf("%w: metadata: %w", ErrUnexpectedTransaction, err)
		}
	}
	if meta.UserPubkey != "" && meta.UserPubkey != payer.String() {
		return fmt.Errorf("%w: metadata user %s", ErrUnexpectedTransaction, meta.UserPubkey)
	}

	switch want {
	case program.InstructionAddReadAuthority, program.InstructionAddWriteAuthority,
		program.InstructionRemoveReadAuthority, program.InstructionRemoveWriteAuthority:
		var a program.AuthorityArgs
		if err := bin.NewBorshDecoder(args).Decode(&a); err != nil {
			return fmt.Errorf("%w: authority args: %w", ErrUnexpectedTransaction, err)
		}
		target := meta.NewAuthority
		if target == "" {
			target = meta.AuthorityToRemove
		}
		if target != a.Authority.String() {
			return fmt.Errorf("%w: instruction authority %s, metadata %q", ErrUnexpectedTransaction, a.Authority, target)
		}
	case program.InstructionCreatePatient, program.InstructionUpdatePatient, program.InstructionGetPatient:
		if len(ix.Accounts) < 2 {
			return fmt.Errorf("%w: missing patient accounts", ErrUnexpectedTransaction)
		}
		addr, seed := ix.Accounts[0].PublicKey.String(), ix.Accounts[1].PublicKey.String()
		for _, v := range []struct{ got, want string }{
			{meta.PatientAddress, addr},
			{meta.PatientSeed, seed},
			{p.PatientAddress, addr},
			{p.PatientSeed, seed},
		} {
			if v.got != "" && v.got != v.want {
				return fmt.Errorf("%w: patient %s does not match instruction", ErrUnexpectedTransaction, v.got)
			}
		}
	}
	return nil
}
