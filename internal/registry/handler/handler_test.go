package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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
)

type testServer struct {
	router   *gin.Engine
	operator solana.PrivateKey
}

func mustKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k
}

func setupRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	programID := mustKey(t).PublicKey()
	serviceKey := mustKey(t)
	operator := mustKey(t)

	sim := chain.NewSimulator(logger, program.New(programID))
	builder, err := txbuilder.New(programID, serviceKey.PublicKey())
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	coord := signing.New(sim, serviceKey, programID, signing.Config{AnchorAttempts: 1, AnchorDelay: time.Millisecond}, logger)
	sealer, err := patientdata.NewSealer(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	svc := service.NewRegistryService(sim, builder, coord, sealer, patientdata.NewTokenStore(),
		seedindex.New(builder.PatientAddress, nil, logger), logger)
	svc.SetOperators([]solana.PublicKey{operator.PublicKey()})
	svc.SetViewBaseURL("http://records.test")

	sessions, err := identity.NewSessionIssuer(bytes.Repeat([]byte("s"), 32), "medrec-test", time.Hour)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	auth := identity.RequireWallet(sessions)

	r := gin.New()
	r.Use(handler.RequestID(), handler.SecurityHeaders(), handler.BodyLimit(1<<20))
	api := r.Group("/api")
	handler.NewAuthHandler(sessions, 0, logger).Register(api)
	handler.NewAuthorityHandler(svc, logger).Register(api, auth)
	handler.NewTransactionHandler(svc, logger).Register(api, auth)
	handler.NewPatientHandler(svc, logger).Register(api, auth)
	return &testServer{router: r, operator: operator}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, key solana.PrivateKey) string {
	t.Helper()
	ts := time.Now().Unix()
	sig, err := key.Sign([]byte(identity.LoginMessage(ts)))
	if err != nil {
		t.Fatalf("sign challenge: %v", err)
	}
	w := s.do(t, http.MethodPost, "/api/auth", "", map[string]any{
		"public_key": key.PublicKey().String(),
		"signature":  sig.String(),
		"timestamp":  ts,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp["token"].(string)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func signSerialized(t *testing.T, serialized string, key solana.PrivateKey) string {
	t.Helper()
	tx, err := chain.DecodeTransaction(serialized)
	if err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if err := chain.SignAs(tx, key); err != nil {
		t.Fatalf("sign transaction: %v", err)
	}
	out, err := chain.EncodeTransaction(tx)
	if err != nil {
		t.Fatalf("encode transaction: %v", err)
	}
	return out
}

func TestLogin_staleTimestamp_401(t *testing.T) {
	s := setupRouter(t)
	key := mustKey(t)
	ts := time.Now().Add(-time.Hour).Unix()
	sig, _ := key.Sign([]byte(identity.LoginMessage(ts)))

	w := s.do(t, http.MethodPost, "/api/auth", "", map[string]any{
		"public_key": key.PublicKey().String(),
		"signature":  sig.String(),
		"timestamp":  ts,
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLogin_malformedKey_400(t *testing.T) {
	s := setupRouter(t)
	w := s.do(t, http.MethodPost, "/api/auth", "", map[string]any{
		"public_key": "not-a-key",
		"signature":  "x",
		"timestamp":  time.Now().Unix(),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if kind := decode(t, w)["kind"]; kind != "bad_request" {
		t.Errorf("expected kind bad_request, got %v", kind)
	}
}

func TestAuthorities_requiresSession(t *testing.T) {
	s := setupRouter(t)
	w := s.do(t, http.MethodGet, "/api/authorities", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestInitializeAndSubmit_200(t *testing.T) {
	s := setupRouter(t)
	token := s.login(t, s.operator)

	w := s.do(t, http.MethodPost, "/api/transactions/prepare/initialize", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("prepare: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	prepared := decode(t, w)
	if prepared["transaction_type"] != program.InstructionInitialize {
		t.Errorf("unexpected transaction_type %v", prepared["transaction_type"])
	}

	signed := signSerialized(t, prepared["serialized_transaction"].(string), s.operator)
	w = s.do(t, http.MethodPost, "/api/transactions/submit", token, map[string]string{"serialized_transaction": signed})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["signature"] == "" {
		t.Error("expected a signature")
	}

	w = s.do(t, http.MethodGet, "/api/authorities", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("authorities: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if readers := decode(t, w)["read_authorities"].([]any); len(readers) != 1 {
		t.Errorf("expected one read authority, got %v", readers)
	}
}

func TestSubmit_unsigned_400_missingSignature(t *testing.T) {
	s := setupRouter(t)
	token := s.login(t, s.operator)

	prepared := decode(t, s.do(t, http.MethodPost, "/api/transactions/prepare/initialize", token, nil))
	w := s.do(t, http.MethodPost, "/api/transactions/submit", token, map[string]any{
		"serialized_transaction": prepared["serialized_transaction"],
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["code"] != "missing_signature" {
		t.Errorf("expected code missing_signature, got %v", resp["code"])
	}
	if !strings.Contains(resp["error"].(string), "missing signature for required signer") {
		t.Errorf("unexpected error message %v", resp["error"])
	}
}

func TestPrepareAddAuthority_userPubkeyMismatch_401(t *testing.T) {
	s := setupRouter(t)
	token := s.login(t, s.operator)

	w := s.do(t, http.MethodPost, "/api/transactions/prepare/add-read-authority", token, map[string]string{
		"user_pubkey":   mustKey(t).PublicKey().String(),
		"new_authority": mustKey(t).PublicKey().String(),
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPrepareAddAuthority_missingField_400(t *testing.T) {
	s := setupRouter(t)
	token := s.login(t, s.operator)

	w := s.do(t, http.MethodPost, "/api/transactions/prepare/add-write-authority", token, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPrepareInitialize_nonOperator_401(t *testing.T) {
	s := setupRouter(t)
	token := s.login(t, mustKey(t))

	w := s.do(t, http.MethodPost, "/api/transactions/prepare/initialize", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestView_unknownToken_401(t *testing.T) {
	s := setupRouter(t)
	w := s.do(t, http.MethodGet, "/api/patients/view/does-not-exist", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["code"] != "invalid_token" {
		t.Errorf("expected code invalid_token, got %v", resp["code"])
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected Cache-Control: no-store")
	}
}

func TestPatientLifecycle_200(t *testing.T) {
	s := setupRouter(t)
	opToken := s.login(t, s.operator)

	submit := func(prepared map[string]any, key solana.PrivateKey, token string) {
		t.Helper()
		signed := signSerialized(t, prepared["serialized_transaction"].(string), key)
		w := s.do(t, http.MethodPost, "/api/transactions/submit", token, map[string]string{"serialized_transaction": signed})
		if w.Code != http.StatusOK {
			t.Fatalf("submit %v: expected 200, got %d: %s", prepared["transaction_type"], w.Code, w.Body.String())
		}
	}

	submit(decode(t, s.do(t, http.MethodPost, "/api/transactions/prepare/initialize", opToken, nil)), s.operator, opToken)

	doctor := mustKey(t)
	for _, path := range []string{"add-write-authority", "add-read-authority"} {
		w := s.do(t, http.MethodPost, "/api/transactions/prepare/"+path, opToken, map[string]string{
			"new_authority": doctor.PublicKey().String(),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
		submit(decode(t, w), s.operator, opToken)
	}

	docToken := s.login(t, doctor)
	w := s.do(t, http.MethodPost, "/api/transactions/prepare/create-patient", docToken, map[string]any{
		"patient_data": map[string]string{"name": "Jane", "blood_type": "O+"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create-patient: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	created := decode(t, w)
	submit(created, doctor, docToken)

	w = s.do(t, http.MethodPost, "/api/patients/get", docToken, map[string]any{
		"patient_address": created["patient_address"],
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patients/get: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	issued := decode(t, w)
	viewURL := issued["view_url"].(string)
	if !strings.HasPrefix(viewURL, "http://records.test/api/patients/view/") {
		t.Fatalf("unexpected view_url %q", viewURL)
	}

	w = s.do(t, http.MethodGet, strings.TrimPrefix(viewURL, "http://records.test"), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("view: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := decode(t, w)["patient_data"].(map[string]any)
	if data["name"] != "Jane" || data["blood_type"] != "O+" {
		t.Errorf("unexpected patient data %v", data)
	}

	w = s.do(t, http.MethodGet, "/api/authorities/history", opToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if entries := decode(t, w)["entries"].([]any); len(entries) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(entries))
	}
}

func TestRequestID_echoed(t *testing.T) {
	s := setupRouter(t)
	w := s.do(t, http.MethodGet, "/api/authorities", "", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}
