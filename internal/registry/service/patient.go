package service

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/apperr"
	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/patientdata"
	"github.com/jmerrifield20/MedRecordLedger/internal/pinning"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/model"
	"github.com/jmerrifield20/MedRecordLedger/internal/seedindex"
	"github.com/jmerrifield20/MedRecordLedger/internal/txbuilder"
)

// patientMetadata is echoed back from patient prepares in place of the
// request, which carries plaintext.
type patientMetadata struct {
	PatientAddress string `json:"patient_address"`
	PatientSeed    string `json:"patient_seed"`
}

// PrepareCreatePatient seals the payload under a freshly generated seed,
// records the seed and prepares the unsigned create_patient transaction.
func (s *RegistryService) PrepareCreatePatient(ctx context.Context, caller solana.PublicKey, req *model.CreatePatientRequest) (*model.PreparedPatientTransaction, error) {
	if err := s.requireWriter(ctx, caller); err != nil {
		return nil, err
	}
	sealed, err := s.seal(ctx, &req.PatientData, req.Attachment)
	if err != nil {
		return nil, err
	}

	seedKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, apperr.Internal(err, "failed to generate patient seed")
	}
	seed := seedKey.PublicKey()
	op, err := s.builder.CreatePatient(caller, seed, sealed)
	if err != nil {
		return nil, apperr.Internal(err, "failed to build create_patient instruction")
	}
	if err := s.seeds.Record(ctx, op.Patient, seed); err != nil {
		return nil, apperr.Internal(err, "failed to record patient seed")
	}
	s.logger.Info("patient seed recorded",
		zap.String("patient", op.Patient.String()),
		zap.String("writer", caller.String()),
	)
	return s.preparePatient(ctx, caller, op, seed, sealed)
}

// PrepareUpdatePatient seals a replacement payload for an existing record
// and prepares the unsigned update_patient transaction.
func (s *RegistryService) PrepareUpdatePatient(ctx context.Context, caller solana.PublicKey, req *model.UpdatePatientRequest) (*model.PreparedPatientTransaction, error) {
	seed, address, err := s.resolvePatient(req.PatientSeed, req.PatientAddress)
	if err != nil {
		return nil, err
	}
	if err := s.requireWriter(ctx, caller); err != nil {
		return nil, err
	}
	if _, err := s.fetchPatient(ctx, address); err != nil {
		return nil, err
	}
	sealed, err := s.seal(ctx, &req.PatientData, req.Attachment)
	if err != nil {
		return nil, err
	}
	op, err := s.builder.UpdatePatient(caller, seed, sealed)
	if err != nil {
		return nil, apperr.Internal(err, "failed to build update_patient instruction")
	}
	return s.preparePatient(ctx, caller, op, seed, sealed)
}

// PreparePatientRead prepares the unsigned get_patient transaction, which
// records an integrity-checked read on the ledger.
func (s *RegistryService) PreparePatientRead(ctx context.Context, caller solana.PublicKey, req *model.PatientLookupRequest) (*model.PreparedPatientTransaction, error) {
	seed, address, err := s.resolvePatient(req.PatientSeed, req.PatientAddress)
	if err != nil {
		return nil, err
	}
	if _, err := s.fetchPatient(ctx, address); err != nil {
		return nil, err
	}
	op, err := s.builder.GetPatient(caller, seed)
	if err != nil {
		return nil, apperr.Internal(err, "failed to build get_patient instruction")
	}
	return s.preparePatient(ctx, caller, op, seed, "")
}

func (s *RegistryService) preparePatient(ctx context.Context, caller solana.PublicKey, op *txbuilder.Op, seed solana.PublicKey, sealed string) (*model.PreparedPatientTransaction, error) {
	p, err := s.coord.Prepare(ctx, caller, op, patientMetadata{
		PatientAddress: op.Patient.String(),
		PatientSeed:    seed.String(),
	})
	if err != nil {
		return nil, err
	}
	return &model.PreparedPatientTransaction{
		PreparedTransaction: s.prepared(p),
		PatientAddress:      op.Patient.String(),
		PatientSeed:         seed.String(),
		EncryptedData:       sealed,
	}, nil
}

// IssueViewToken checks that caller is a current read authority and that the
// record passes its integrity check, then issues a short-lived view token.
func (s *RegistryService) IssueViewToken(ctx context.Context, caller solana.PublicKey, req *model.PatientLookupRequest) (*model.ViewTokenResponse, error) {
	admin, err := s.loadAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !admin.IsReader(caller) {
		return nil, apperr.Unauthorized("wallet %s is not a read authority", caller)
	}
	seed, address, err := s.resolvePatient(req.PatientSeed, req.PatientAddress)
	if err != nil {
		return nil, err
	}
	if _, err := s.fetchPatient(ctx, address); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(seed.String())
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue view token")
	}
	s.logger.Info("view token issued",
		zap.String("patient", address.String()),
		zap.String("reader", caller.String()),
		zap.Time("expires_at", expiresAt),
	)
	return &model.ViewTokenResponse{
		ViewURL:        s.viewURL + "/api/patients/view/" + token,
		Token:          token,
		ExpiresAt:      expiresAt,
		PatientAddress: address.String(),
	}, nil
}

// View redeems a view token for the decrypted record. Unknown and expired
// tokens are indistinguishable to the caller.
func (s *RegistryService) View(ctx context.Context, token string) (*model.PatientView, error) {
	seedStr, err := s.tokens.Resolve(token)
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired view token").WithCode(apperr.CodeInvalidToken)
	}
	seed, err := solana.PublicKeyFromBase58(seedStr)
	if err != nil {
		return nil, apperr.Internal(err, "stored view token seed is invalid")
	}
	address, err := s.builder.PatientAddress(seed)
	if err != nil {
		return nil, apperr.Internal(err, "failed to derive patient address")
	}
	patient, err := s.fetchPatient(ctx, address)
	if err != nil {
		return nil, err
	}
	payload, err := s.sealer.OpenPayload(patient.EncryptedData)
	if err != nil {
		return nil, apperr.Internal(err, "failed to decrypt patient record")
	}
	return &model.PatientView{PatientAddress: address.String(), PatientData: *payload}, nil
}

// resolvePatient accepts a seed, an address, or both. An address alone is
// resolved through the seed index.
func (s *RegistryService) resolvePatient(seedStr, addressStr string) (solana.PublicKey, solana.PublicKey, error) {
	if seedStr == "" && addressStr == "" {
		return solana.PublicKey{}, solana.PublicKey{}, apperr.BadRequest("patient_seed or patient_address is required")
	}
	if seedStr != "" {
		seed, err := parseKey("patient_seed", seedStr)
		if err != nil {
			return solana.PublicKey{}, solana.PublicKey{}, err
		}
		address, err := s.builder.PatientAddress(seed)
		if err != nil {
			return solana.PublicKey{}, solana.PublicKey{}, apperr.Internal(err, "failed to derive patient address")
		}
		if addressStr != "" && addressStr != address.String() {
			return solana.PublicKey{}, solana.PublicKey{}, apperr.BadRequest("patient_seed does not derive patient_address")
		}
		return seed, address, nil
	}

	address, err := parseKey("patient_address", addressStr)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	seed, err := s.seeds.Lookup(address)
	switch {
	case errors.Is(err, seedindex.ErrSeedUnknown):
		return solana.PublicKey{}, solana.PublicKey{}, apperr.BadRequest("seed for patient %s is not known; supply patient_seed", address).WithCode(apperr.CodePatientNotFound)
	case err != nil:
		return solana.PublicKey{}, solana.PublicKey{}, apperr.BadRequest("no patient recorded at %s", address).WithCode(apperr.CodePatientNotFound)
	}
	return seed, address, nil
}

// fetchPatient loads and integrity-checks a Patient account.
func (s *RegistryService) fetchPatient(ctx context.Context, address solana.PublicKey) (*program.Patient, error) {
	acct, err := s.chain.GetAccount(ctx, address)
	if errors.Is(err, chain.ErrAccountNotFound) {
		return nil, apperr.BadRequest("no patient recorded at %s", address).WithCode(apperr.CodePatientNotFound)
	}
	if err != nil {
		return nil, apperr.Ledger(err, "failed to fetch patient account")
	}
	patient, err := s.decoder.DecodePatient(acct.Data)
	if err != nil {
		return nil, apperr.Ledger(err, "failed to decode patient account")
	}
	if !patient.IsInitialized {
		return nil, apperr.BadRequest("no patient recorded at %s", address).WithCode(apperr.CodePatientNotFound)
	}
	if err := patient.Verify(); err != nil {
		s.logger.Error("patient record failed integrity check", zap.String("patient", address.String()))
		return nil, apperr.Ledger(err, "patient record failed integrity check").WithCode(apperr.CodeDataIntegrity)
	}
	return patient, nil
}

func (s *RegistryService) requireWriter(ctx context.Context, caller solana.PublicKey) error {
	admin, err := s.loadAdmin(ctx)
	if err != nil {
		return err
	}
	if !admin.IsWriter(caller) {
		return apperr.Unauthorized("wallet %s is not a write authority", caller)
	}
	return nil
}

// seal pins the attachment, if any, and encrypts the payload.
func (s *RegistryService) seal(ctx context.Context, payload *patientdata.Payload, attachment []byte) (string, error) {
	if len(attachment) > 0 {
		cid, err := s.pinner.Pin(ctx, attachment)
		switch {
		case errors.Is(err, pinning.ErrDisabled):
			return "", apperr.BadRequest("attachments are not enabled")
		case err != nil:
			return "", apperr.Internal(err, "failed to pin attachment")
		}
		payload.File = cid
	}
	if err := payload.Validate(); err != nil {
		return "", apperr.BadRequest("invalid patient data: %v", err)
	}
	sealed, err := s.sealer.SealPayload(payload)
	if err != nil {
		return "", apperr.Internal(err, "failed to encrypt patient data")
	}
	if len(sealed) > program.MaxEncryptedDataLen {
		return "", apperr.BadRequest("patient data too large")
	}
	return sealed, nil
}
