package chain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/jmerrifield20/MedRecordLedger/internal/program"
)

// Decompile expands the compiled instructions of tx into instructions with
// full account metas, deriving signer and writable flags from the message
// header.
func Decompile(tx *solana.Transaction) ([]program.Instruction, error) {
	keys := tx.Message.AccountKeys
	out := make([]program.Instruction, 0, len(tx.Message.Instructions))
	for i, ci := range tx.Message.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			return nil, fmt.Errorf("instruction %d: program index %d out of range", i, ci.ProgramIDIndex)
		}
		metas := make([]*solana.AccountMeta, 0, len(ci.Accounts))
		for _, idx := range ci.Accounts {
			if int(idx) >= len(keys) {
				return nil, fmt.Errorf("instruction %d: account index %d out of range", i, idx)
			}
			metas = append(metas, &solana.AccountMeta{
				PublicKey:  keys[idx],
				IsSigner:   isSigner(tx.Message.Header, int(idx)),
				IsWritable: isWritable(tx.Message.Header, len(keys), int(idx)),
			})
		}
		out = append(out, program.Instruction{
			ProgramID: keys[ci.ProgramIDIndex],
			Accounts:  metas,
			Data:      []byte(ci.Data),
		})
	}
	return out, nil
}

func isSigner(h solana.MessageHeader, i int) bool {
	return i < int(h.NumRequiredSignatures)
}

func isWritable(h solana.MessageHeader, numKeys, i int) bool {
	signed := int(h.NumRequiredSignatures)
	if i < signed {
		return i < signed-int(h.NumReadonlySignedAccounts)
	}
	return i < numKeys-int(h.NumReadonlyUnsignedAccounts)
}
