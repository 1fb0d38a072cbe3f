package service

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/apperr"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/model"
)

// PrepareInitialize prepares the co-signed transaction that creates the Admin
// account with the service key as authority. caller pays the fees.
func (s *RegistryService) PrepareInitialize(ctx context.Context, caller solana.PublicKey) (*model.PreparedTransaction, error) {
	if err := s.requireOperator(caller); err != nil {
		return nil, err
	}
	op, err := s.builder.Initialize(caller)
	if err != nil {
		return nil, apperr.Internal(err, "failed to build initialize instruction")
	}
	p, err := s.coord.Prepare(ctx, caller, op, &model.InitializeRequest{UserPubkey: caller.String()})
	if err != nil {
		return nil, err
	}
	out := s.prepared(p)
	return &out, nil
}

// PrepareAuthorityChange prepares one of the four co-signed authority-list
// instructions. request is echoed back as metadata.
func (s *RegistryService) PrepareAuthorityChange(ctx context.Context, caller solana.PublicKey, instruction, target string, request any) (*model.PreparedTransaction, error) {
	switch instruction {
	case program.InstructionAddReadAuthority, program.InstructionAddWriteAuthority,
		program.InstructionRemoveReadAuthority, program.InstructionRemoveWriteAuthority:
	default:
		return nil, apperr.BadRequest("unknown authority instruction %q", instruction)
	}
	if err := s.requireOperator(caller); err != nil {
		return nil, err
	}
	targetKey, err := parseKey("authority", target)
	if err != nil {
		return nil, err
	}
	admin, err := s.loadAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if !admin.Authority.Equals(s.coord.ServiceKey()) {
		return nil, apperr.Unauthorized("service key is not the admin authority")
	}

	op, err := s.builder.AuthorityOp(instruction, caller, targetKey)
	if err != nil {
		return nil, apperr.Internal(err, "failed to build authority instruction")
	}
	p, err := s.coord.Prepare(ctx, caller, op, request)
	if err != nil {
		return nil, err
	}
	s.logger.Info("authority change prepared",
		zap.String("instruction", instruction),
		zap.String("caller", caller.String()),
		zap.String("target", targetKey.String()),
	)
	out := s.prepared(p)
	return &out, nil
}

func (s *RegistryService) requireOperator(caller solana.PublicKey) error {
	if _, ok := s.operators[caller]; !ok {
		return apperr.Unauthorized("wallet %s may not request service co-signatures", caller)
	}
	return nil
}
