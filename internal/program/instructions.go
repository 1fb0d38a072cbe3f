package program

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// AuthorityArgs is the argument of the four authority-management instructions.
type AuthorityArgs struct {
	Authority solana.PublicKey
}

// PatientArgs is the argument of create_patient and update_patient.
type PatientArgs struct {
	EncryptedData string
}

// EncodeInstruction returns the discriminator of name followed by the
// Borsh-encoded args. A nil args yields the bare discriminator.
func EncodeInstruction(name string, args any) ([]byte, error) {
	d, ok := InstructionDiscriminator(name)
	if !ok {
		return nil, fmt.Errorf("unknown instruction %q", name)
	}
	var buf bytes.Buffer
	buf.Write(d[:])
	if args != nil {
		if err := bin.NewBorshEncoder(&buf).Encode(args); err != nil {
			return nil, fmt.Errorf("encode %s args: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeInstruction splits instruction data into its name and args payload.
func DecodeInstruction(data []byte) (string, []byte, error) {
	if len(data) < len(Discriminator{}) {
		return "", nil, ErrInstructionFallbackNotFound
	}
	var d Discriminator
	copy(d[:], data)
	name, ok := InstructionName(d)
	if !ok {
		return "", nil, ErrInstructionFallbackNotFound
	}
	return name, data[len(d):], nil
}

func decodeArgs(payload []byte, v any) error {
	if err := bin.NewBorshDecoder(payload).Decode(v); err != nil {
		return ErrInstructionDidNotDeserialize
	}
	return nil
}
