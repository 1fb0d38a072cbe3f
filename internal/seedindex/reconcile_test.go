package seedindex_test

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/internal/seedindex"
)

func TestReconcile_marksUnknownPatients(t *testing.T) {
	programID, authority := newKey(t), newKey(t)
	derive := func(seed solana.PublicKey) (solana.PublicKey, error) {
		addr, _, err := program.PatientAddress(programID, authority, seed)
		return addr, err
	}
	sim := chain.NewSimulator(zap.NewNop(), program.New(programID))

	patient := func(seed solana.PublicKey) solana.PublicKey {
		addr := mustDerive(t, derive, seed)
		data, err := program.V1.EncodePatient(&program.Patient{
			PatientAddress: addr,
			IsInitialized:  true,
			EncryptedData:  "ct|nonce",
			DataHash:       program.DataHash("ct|nonce"),
		})
		require.NoError(t, err)
		sim.SetAccount(addr, programID, data)
		return addr
	}
	knownSeed := newKey(t)
	known := patient(knownSeed)
	lost := patient(newKey(t))

	// Non-patient accounts are not scanned.
	adminData, err := program.V1.EncodeAdmin(&program.Admin{Authority: authority})
	require.NoError(t, err)
	sim.SetAccount(newKey(t), programID, adminData)

	ix := seedindex.New(derive, nil, zap.NewNop())
	require.NoError(t, ix.Record(context.Background(), known, knownSeed))

	report, err := seedindex.Reconcile(context.Background(), ix, sim, programID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Known)
	assert.Equal(t, 1, report.MarkedUnknown)

	_, err = ix.Lookup(lost)
	assert.ErrorIs(t, err, seedindex.ErrSeedUnknown)
	got, err := ix.Lookup(known)
	require.NoError(t, err)
	assert.Equal(t, knownSeed, got)

	// A second pass changes nothing.
	report, err = seedindex.Reconcile(context.Background(), ix, sim, programID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.MarkedUnknown)
}
