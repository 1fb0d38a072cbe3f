package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/identity"
	"github.com/jmerrifield20/MedRecordLedger/internal/patientdata"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/handler"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/service"
	"github.com/jmerrifield20/MedRecordLedger/internal/seedindex"
	"github.com/jmerrifield20/MedRecordLedger/internal/signing"
	"github.com/jmerrifield20/MedRecordLedger/internal/txbuilder"
	"github.com/jmerrifield20/MedRecordLedger/pkg/client"
)

// expiringChain reports the next n submissions as expired.
type expiringChain struct {
	*chain.Simulator
	mu      sync.Mutex
	expire  int
	submits int
}

func (e *expiringChain) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	e.mu.Lock()
	e.submits++
	expire := e.expire > 0
	if expire {
		e.expire--
	}
	e.mu.Unlock()
	if expire {
		return solana.Signature{}, chain.ErrAnchorExpired
	}
	return e.Simulator.SendAndConfirm(ctx, tx)
}

func (e *expiringChain) expireNext(n int) {
	e.mu.Lock()
	e.expire = n
	e.mu.Unlock()
}

type gateway struct {
	url       string
	chain     *expiringChain
	operator  solana.PrivateKey
	programID solana.PublicKey
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k
}

func startGateway(t *testing.T) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	programID := newKey(t).PublicKey()
	serviceKey := newKey(t)
	operator := newKey(t)

	ec := &expiringChain{Simulator: chain.NewSimulator(logger, program.New(programID))}
	builder, err := txbuilder.New(programID, serviceKey.PublicKey())
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	coord := signing.New(ec, serviceKey, programID, signing.Config{AnchorAttempts: 1, AnchorDelay: time.Millisecond}, logger)
	sealer, err := patientdata.NewSealer(make([]byte, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	svc := service.NewRegistryService(ec, builder, coord, sealer, patientdata.NewTokenStore(),
		seedindex.New(builder.PatientAddress, nil, logger), logger)
	svc.SetOperators([]solana.PublicKey{operator.PublicKey()})

	sessions, err := identity.NewSessionIssuer(make([]byte, 32), "medrec-test", time.Hour)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	auth := identity.RequireWallet(sessions)

	r := gin.New()
	api := r.Group("/api")
	handler.NewAuthHandler(sessions, 0, logger).Register(api)
	handler.NewAuthorityHandler(svc, logger).Register(api, auth)
	handler.NewTransactionHandler(svc, logger).Register(api, auth)
	handler.NewPatientHandler(svc, logger).Register(api, auth)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	svc.SetViewBaseURL(srv.URL)
	return &gateway{url: srv.URL, chain: ec, operator: operator, programID: programID}
}

func login(t *testing.T, g *gateway, wallet solana.PrivateKey, opts ...client.Option) *client.Client {
	t.Helper()
	c := client.MustNew(g.url, opts...)
	if _, err := c.Login(context.Background(), wallet); err != nil {
		t.Fatalf("login: %v", err)
	}
	return c
}

func TestClient_fullLifecycle(t *testing.T) {
	ctx := context.Background()
	g := startGateway(t)
	op := login(t, g, g.operator)

	if _, err := op.Initialize(ctx, g.operator); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	doctor := newKey(t)
	for _, kind := range []string{client.AddWriteAuthority, client.AddReadAuthority} {
		if _, err := op.ChangeAuthority(ctx, g.operator, kind, doctor.PublicKey()); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
	}

	auth, err := op.Authorities(ctx)
	if err != nil {
		t.Fatalf("authorities: %v", err)
	}
	if len(auth.ReadAuthorities) != 2 || len(auth.WriteAuthorities) != 2 {
		t.Errorf("unexpected authorities %+v", auth)
	}

	doc := login(t, g, doctor)
	rec, err := doc.CreatePatient(ctx, doctor, client.PatientData{Name: "Jane"}, nil)
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	if rec.PatientAddress == "" || rec.PatientSeed == "" || rec.Signature == "" {
		t.Fatalf("incomplete result %+v", rec)
	}

	if _, err := doc.UpdatePatient(ctx, doctor, client.PatientRef{Seed: rec.PatientSeed}, client.PatientData{Name: "Jane", BloodType: "B+"}, nil); err != nil {
		t.Fatalf("update patient: %v", err)
	}
	if _, err := doc.ReadPatient(ctx, doctor, client.PatientRef{Address: rec.PatientAddress}); err != nil {
		t.Fatalf("read patient: %v", err)
	}

	tok, err := doc.RequestView(ctx, client.PatientRef{Address: rec.PatientAddress})
	if err != nil {
		t.Fatalf("request view: %v", err)
	}
	view, err := client.MustNew(g.url).View(ctx, tok.Token)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.PatientData.BloodType != "B+" {
		t.Errorf("expected updated blood type, got %+v", view.PatientData)
	}

	if _, err := op.ChangeAuthority(ctx, g.operator, client.RemoveReadAuthority, doctor.PublicKey()); err != nil {
		t.Fatalf("remove read authority: %v", err)
	}
	_, err = doc.RequestView(ctx, client.PatientRef{Address: rec.PatientAddress})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("expected 401 after revocation, got %v", err)
	}

	hist, err := op.History(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist.Entries) != 3 {
		t.Errorf("expected 3 history entries, got %d", len(hist.Entries))
	}
}

func TestClient_executeReprepares(t *testing.T) {
	g := startGateway(t)
	op := login(t, g, g.operator)

	g.chain.expireNext(2)
	if _, err := op.Initialize(context.Background(), g.operator); err != nil {
		t.Fatalf("initialize after expired anchors: %v", err)
	}
	if g.chain.submits != 3 {
		t.Errorf("expected 3 submissions, got %d", g.chain.submits)
	}
}

func TestClient_executeGivesUp(t *testing.T) {
	g := startGateway(t)
	op := login(t, g, g.operator, client.WithMaxReprepare(1))

	g.chain.expireNext(5)
	_, err := op.Initialize(context.Background(), g.operator)
	if !client.IsAnchorExpired(err) {
		t.Fatalf("expected anchor_expired, got %v", err)
	}
	if g.chain.submits != 2 {
		t.Errorf("expected 2 submissions, got %d", g.chain.submits)
	}
}

func TestClient_unauthenticated(t *testing.T) {
	g := startGateway(t)
	_, err := client.MustNew(g.url).Authorities(context.Background())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Kind != "unauthorized" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestClient_viewUnknownToken(t *testing.T) {
	g := startGateway(t)
	_, err := client.MustNew(g.url).View(context.Background(), "nope")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "invalid_token" {
		t.Fatalf("expected invalid_token, got %v", err)
	}
}

func TestWithMaxReprepare_negative(t *testing.T) {
	if _, err := client.New("http://localhost", client.WithMaxReprepare(-1)); err == nil {
		t.Error("expected error for negative max reprepare")
	}
}
