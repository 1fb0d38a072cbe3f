package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/apperr"
	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/patientdata"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/model"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/service"
	"github.com/jmerrifield20/MedRecordLedger/internal/seedindex"
	"github.com/jmerrifield20/MedRecordLedger/internal/signing"
	"github.com/jmerrifield20/MedRecordLedger/internal/txbuilder"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc      *service.RegistryService
	sim      *chain.Simulator
	clock    *clock
	operator solana.PrivateKey
	seeds    *seedindex.Index
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	programID := newKey(t).PublicKey()
	serviceKey := newKey(t)
	operator := newKey(t)
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	sim := chain.NewSimulator(zap.NewNop(), program.New(programID))
	sim.SetClock(clk.Now)
	builder, err := txbuilder.New(programID, serviceKey.PublicKey())
	require.NoError(t, err)
	coord := signing.New(sim, serviceKey, programID, signing.Config{AnchorAttempts: 2, AnchorDelay: time.Millisecond}, zap.NewNop())
	sealer, err := patientdata.NewSealer(make([]byte, 32))
	require.NoError(t, err)
	tokens := patientdata.NewTokenStore().WithClock(clk.Now)
	seeds := seedindex.New(builder.PatientAddress, nil, zap.NewNop())

	svc := service.NewRegistryService(sim, builder, coord, sealer, tokens, seeds, zap.NewNop())
	svc.SetOperators([]solana.PublicKey{operator.PublicKey()})
	svc.SetViewBaseURL("https://records.example.org/")
	return &harness{svc: svc, sim: sim, clock: clk, operator: operator, seeds: seeds}
}

func sign(t *testing.T, serialized string, keys ...solana.PrivateKey) string {
	t.Helper()
	tx, err := chain.DecodeTransaction(serialized)
	require.NoError(t, err)
	for _, k := range keys {
		require.NoError(t, chain.SignAs(tx, k))
	}
	out, err := chain.EncodeTransaction(tx)
	require.NoError(t, err)
	return out
}

func (h *harness) submit(t *testing.T, serialized string, keys ...solana.PrivateKey) {
	t.Helper()
	_, _, err := h.svc.Submit(context.Background(), &model.SubmitTransactionRequest{
		SerializedTransaction: sign(t, serialized, keys...),
	})
	require.NoError(t, err)
}

func (h *harness) initialize(t *testing.T) {
	t.Helper()
	p, err := h.svc.PrepareInitialize(context.Background(), h.operator.PublicKey())
	require.NoError(t, err)
	h.submit(t, p.SerializedTransaction, h.operator)
}

func (h *harness) grant(t *testing.T, instruction string, wallet solana.PublicKey) {
	t.Helper()
	req := &model.AddAuthorityRequest{UserPubkey: h.operator.PublicKey().String(), NewAuthority: wallet.String()}
	p, err := h.svc.PrepareAuthorityChange(context.Background(), h.operator.PublicKey(), instruction, req.NewAuthority, req)
	require.NoError(t, err)
	assert.Equal(t, instruction, p.TransactionType)
	h.submit(t, p.SerializedTransaction, h.operator)
}

func TestRegistry_createGrantViewAndExpire(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	writer := newKey(t)
	reader := newKey(t)

	h.initialize(t)
	h.grant(t, program.InstructionAddWriteAuthority, writer.PublicKey())

	created, err := h.svc.PrepareCreatePatient(ctx, writer.PublicKey(), &model.CreatePatientRequest{
		PatientData: patientdata.Payload{Name: "Jane"},
	})
	require.NoError(t, err)
	assert.Equal(t, program.InstructionCreatePatient, created.TransactionType)
	assert.NotContains(t, string(created.Metadata), "Jane")
	h.submit(t, created.SerializedTransaction, writer)

	seed, err := h.seeds.Lookup(solana.MustPublicKeyFromBase58(created.PatientAddress))
	require.NoError(t, err)
	assert.Equal(t, created.PatientSeed, seed.String())

	h.grant(t, program.InstructionAddReadAuthority, reader.PublicKey())

	issued, err := h.svc.IssueViewToken(ctx, reader.PublicKey(), &model.PatientLookupRequest{PatientAddress: created.PatientAddress})
	require.NoError(t, err)
	assert.Equal(t, "https://records.example.org/api/patients/view/"+issued.Token, issued.ViewURL)
	assert.Equal(t, h.clock.Now().Add(patientdata.ViewTokenTTL), issued.ExpiresAt)

	view, err := h.svc.View(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "Jane", view.PatientData.Name)

	again, err := h.svc.View(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, view, again)

	h.clock.Advance(patientdata.ViewTokenTTL)
	_, err = h.svc.View(ctx, issued.Token)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	_, err = h.svc.View(ctx, "not-a-token")
	assert.Equal(t, apperr.From(err).Message, "invalid or expired view token")
}

func TestRegistry_updatePatient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	writer := newKey(t)
	h.initialize(t)
	h.grant(t, program.InstructionAddWriteAuthority, writer.PublicKey())
	h.grant(t, program.InstructionAddReadAuthority, writer.PublicKey())

	created, err := h.svc.PrepareCreatePatient(ctx, writer.PublicKey(), &model.CreatePatientRequest{
		PatientData: patientdata.Payload{Name: "Jane", BloodType: "O+"},
	})
	require.NoError(t, err)
	h.submit(t, created.SerializedTransaction, writer)

	updated, err := h.svc.PrepareUpdatePatient(ctx, writer.PublicKey(), &model.UpdatePatientRequest{
		PatientAddress: created.PatientAddress,
		PatientData:    patientdata.Payload{Name: "Jane", BloodType: "AB-"},
	})
	require.NoError(t, err)
	assert.Equal(t, created.PatientSeed, updated.PatientSeed)
	h.submit(t, updated.SerializedTransaction, writer)

	issued, err := h.svc.IssueViewToken(ctx, writer.PublicKey(), &model.PatientLookupRequest{PatientSeed: created.PatientSeed})
	require.NoError(t, err)
	view, err := h.svc.View(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "AB-", view.PatientData.BloodType)
}

func TestRegistry_patientReadTransaction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	writer := newKey(t)
	h.initialize(t)
	h.grant(t, program.InstructionAddWriteAuthority, writer.PublicKey())
	h.grant(t, program.InstructionAddReadAuthority, writer.PublicKey())

	created, err := h.svc.PrepareCreatePatient(ctx, writer.PublicKey(), &model.CreatePatientRequest{
		PatientData: patientdata.Payload{PhoneNumber: "555-0100"},
	})
	require.NoError(t, err)
	h.submit(t, created.SerializedTransaction, writer)

	read, err := h.svc.PreparePatientRead(ctx, writer.PublicKey(), &model.PatientLookupRequest{PatientAddress: created.PatientAddress})
	require.NoError(t, err)
	assert.Equal(t, program.InstructionGetPatient, read.TransactionType)
	assert.Empty(t, read.EncryptedData)
	h.submit(t, read.SerializedTransaction, writer)
}

func TestRegistry_nonOperatorCannotRequestCosignature(t *testing.T) {
	h := newHarness(t)
	stranger := newKey(t)

	_, err := h.svc.PrepareInitialize(context.Background(), stranger.PublicKey())
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	h.initialize(t)
	_, err = h.svc.PrepareAuthorityChange(context.Background(), stranger.PublicKey(),
		program.InstructionAddReadAuthority, stranger.PublicKey().String(), nil)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestRegistry_nonReaderGetsNoToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	writer := newKey(t)
	h.initialize(t)
	h.grant(t, program.InstructionAddWriteAuthority, writer.PublicKey())

	created, err := h.svc.PrepareCreatePatient(ctx, writer.PublicKey(), &model.CreatePatientRequest{
		PatientData: patientdata.Payload{Name: "Jane"},
	})
	require.NoError(t, err)
	h.submit(t, created.SerializedTransaction, writer)

	_, err = h.svc.IssueViewToken(ctx, writer.PublicKey(), &model.PatientLookupRequest{PatientSeed: created.PatientSeed})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestRegistry_revokedReaderGetsNoToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	writer := newKey(t)
	h.initialize(t)
	h.grant(t, program.InstructionAddWriteAuthority, writer.PublicKey())
	h.grant(t, program.InstructionAddReadAuthority, writer.PublicKey())

	created, err := h.svc.PrepareCreatePatient(ctx, writer.PublicKey(), &model.CreatePatientRequest{
		PatientData: patientdata.Payload{Name: "Jane"},
	})
	require.NoError(t, err)
	h.submit(t, created.SerializedTransaction, writer)

	req := &model.RemoveAuthorityRequest{AuthorityToRemove: writer.PublicKey().String()}
	p, err := h.svc.PrepareAuthorityChange(ctx, h.operator.PublicKey(), program.InstructionRemoveReadAuthority, req.AuthorityToRemove, req)
	require.NoError(t, err)
	h.submit(t, p.SerializedTransaction, h.operator)

	_, err = h.svc.IssueViewToken(ctx, writer.PublicKey(), &model.PatientLookupRequest{PatientSeed: created.PatientSeed})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	hist, err := h.svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist.Entries, 3)
	last := hist.Entries[2]
	assert.False(t, last.Added)
	assert.True(t, last.IsRead)
	assert.Equal(t, writer.PublicKey().String(), last.Authority)
}

func TestRegistry_writerCheckedBeforeSealing(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)

	_, err := h.svc.PrepareCreatePatient(context.Background(), newKey(t).PublicKey(), &model.CreatePatientRequest{
		PatientData: patientdata.Payload{Name: "Jane"},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	assert.Zero(t, h.seeds.Len())
}

func TestRegistry_invalidPayloadRejected(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	h.grant(t, program.InstructionAddWriteAuthority, h.operator.PublicKey())

	_, err := h.svc.PrepareCreatePatient(context.Background(), h.operator.PublicKey(), &model.CreatePatientRequest{})
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	_, err = h.svc.PrepareCreatePatient(context.Background(), h.operator.PublicKey(), &model.CreatePatientRequest{
		PatientData: patientdata.Payload{Name: "x"},
		Attachment:  []byte("scan"),
	})
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest), "attachments need a pinner")
}

func TestRegistry_submitRequiresEverySignature(t *testing.T) {
	h := newHarness(t)
	p, err := h.svc.PrepareInitialize(context.Background(), h.operator.PublicKey())
	require.NoError(t, err)

	_, txType, err := h.svc.Submit(context.Background(), &model.SubmitTransactionRequest{SerializedTransaction: p.SerializedTransaction})
	require.Error(t, err)
	assert.Equal(t, program.InstructionInitialize, txType)
	ae := apperr.From(err)
	assert.Equal(t, apperr.KindBadRequest, ae.Kind)
	assert.Equal(t, apperr.CodeMissingSignature, ae.Code)
	assert.Contains(t, ae.Message, h.operator.PublicKey().String())
}

func TestRegistry_expiredAnchorMustBePreparedAgain(t *testing.T) {
	h := newHarness(t)
	p, err := h.svc.PrepareInitialize(context.Background(), h.operator.PublicKey())
	require.NoError(t, err)
	signed := sign(t, p.SerializedTransaction, h.operator)

	h.sim.AdvanceBlocks(chain.DefaultAnchorWindow + 1)
	_, _, err = h.svc.Submit(context.Background(), &model.SubmitTransactionRequest{SerializedTransaction: signed})
	ae := apperr.From(err)
	assert.Equal(t, apperr.KindLedger, ae.Kind)
	assert.Equal(t, apperr.CodeAnchorExpired, ae.Code)

	fresh, err := h.svc.PrepareInitialize(context.Background(), h.operator.PublicKey())
	require.NoError(t, err)
	h.submit(t, fresh.SerializedTransaction, h.operator)
}

func TestRegistry_authoritiesAndEmptyHistory(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Authorities(context.Background())
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	hist, err := h.svc.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hist.Entries)

	h.initialize(t)
	auth, err := h.svc.Authorities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{auth.Authority}, auth.ReadAuthorities)
	assert.Equal(t, []string{auth.Authority}, auth.WriteAuthorities)
}

func TestRegistry_unknownSeedIsReported(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	h.grant(t, program.InstructionAddReadAuthority, h.operator.PublicKey())

	orphan := newKey(t).PublicKey()
	h.seeds.MarkUnknown(orphan)
	_, err := h.svc.IssueViewToken(context.Background(), h.operator.PublicKey(), &model.PatientLookupRequest{PatientAddress: orphan.String()})
	ae := apperr.From(err)
	assert.Equal(t, apperr.KindBadRequest, ae.Kind)
	assert.Equal(t, apperr.CodePatientNotFound, ae.Code)
}
