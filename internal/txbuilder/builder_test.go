package txbuilder_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/internal/txbuilder"
)

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k.PublicKey()
}

type flag struct {
	key      solana.PublicKey
	writable bool
	signer   bool
}

func assertMetas(t *testing.T, op *txbuilder.Op, want []flag) {
	t.Helper()
	got := op.Instruction.Accounts()
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.key, got[i].PublicKey, "account %d key", i)
		assert.Equal(t, w.writable, got[i].IsWritable, "account %d writable", i)
		assert.Equal(t, w.signer, got[i].IsSigner, "account %d signer", i)
	}
}

func TestBuilder_authorityInstructions(t *testing.T) {
	programID, authority, payer, target := newKey(t), newKey(t), newKey(t), newKey(t)
	b, err := txbuilder.New(programID, authority)
	require.NoError(t, err)

	admin, _, err := program.AdminAddress(programID)
	require.NoError(t, err)
	history, _, err := program.HistoryAddress(programID, authority)
	require.NoError(t, err)
	assert.Equal(t, admin, b.AdminAddress())
	assert.Equal(t, history, b.HistoryAddress())

	builders := map[string]func(payer, target solana.PublicKey) (*txbuilder.Op, error){
		program.InstructionAddReadAuthority:     b.AddReadAuthority,
		program.InstructionAddWriteAuthority:    b.AddWriteAuthority,
		program.InstructionRemoveReadAuthority:  b.RemoveReadAuthority,
		program.InstructionRemoveWriteAuthority: b.RemoveWriteAuthority,
	}
	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			op, err := build(payer, target)
			require.NoError(t, err)
			assert.Equal(t, name, op.Name)
			assert.True(t, op.Cosigned)
			assert.Equal(t, programID, op.Instruction.ProgramID())

			assertMetas(t, op, []flag{
				{authority, false, true},
				{payer, true, true},
				{admin, true, false},
				{history, true, false},
				{solana.SystemProgramID, false, false},
			})

			data, err := op.Instruction.Data()
			require.NoError(t, err)
			d, _ := program.InstructionDiscriminator(name)
			assert.Equal(t, d[:], data[:8])
			assert.Equal(t, target[:], data[8:])
		})
	}
}

func TestBuilder_initialize(t *testing.T) {
	programID, authority, payer := newKey(t), newKey(t), newKey(t)
	b, err := txbuilder.New(programID, authority)
	require.NoError(t, err)

	op, err := b.Initialize(payer)
	require.NoError(t, err)
	assert.True(t, op.Cosigned)
	assertMetas(t, op, []flag{
		{authority, true, true},
		{payer, true, true},
		{b.AdminAddress(), true, false},
		{solana.SystemProgramID, false, false},
	})
}

func TestBuilder_patientInstructions(t *testing.T) {
	programID, authority, caller, seed := newKey(t), newKey(t), newKey(t), newKey(t)
	b, err := txbuilder.New(programID, authority)
	require.NoError(t, err)

	patient, _, err := program.PatientAddress(programID, authority, seed)
	require.NoError(t, err)

	for _, name := range []string{program.InstructionCreatePatient, program.InstructionUpdatePatient} {
		var op *txbuilder.Op
		if name == program.InstructionCreatePatient {
			op, err = b.CreatePatient(caller, seed, "ct|nonce")
		} else {
			op, err = b.UpdatePatient(caller, seed, "ct|nonce")
		}
		require.NoError(t, err)
		assert.False(t, op.Cosigned, name)
		assert.Equal(t, patient, op.Patient)
		assertMetas(t, op, []flag{
			{patient, true, false},
			{seed, false, false},
			{caller, true, true},
			{b.AdminAddress(), false, false},
			{solana.SystemProgramID, false, false},
		})
	}

	op, err := b.GetPatient(caller, seed)
	require.NoError(t, err)
	assert.False(t, op.Cosigned)
	assertMetas(t, op, []flag{
		{patient, false, false},
		{seed, false, false},
		{caller, false, true},
		{b.AdminAddress(), false, false},
	})
}

func TestBuilder_rejectsOversizedData(t *testing.T) {
	b, err := txbuilder.New(newKey(t), newKey(t))
	require.NoError(t, err)

	blob := make([]byte, program.MaxEncryptedDataLen+1)
	_, err = b.CreatePatient(newKey(t), newKey(t), string(blob))
	assert.Error(t, err)
}

func TestBuilder_authorityOpByName(t *testing.T) {
	b, err := txbuilder.New(newKey(t), newKey(t))
	require.NoError(t, err)

	op, err := b.AuthorityOp(program.InstructionRemoveWriteAuthority, newKey(t), newKey(t))
	require.NoError(t, err)
	assert.Equal(t, program.InstructionRemoveWriteAuthority, op.Name)

	_, err = b.AuthorityOp(program.InstructionCreatePatient, newKey(t), newKey(t))
	assert.Error(t, err)
}
