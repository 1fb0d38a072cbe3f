package seedindex

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/chain"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
)

// AccountScanner lists program accounts matching a filter.
type AccountScanner interface {
	GetProgramAccounts(ctx context.Context, programID solana.PublicKey, filter chain.MemcmpFilter) ([]*chain.AccountInfo, error)
}

// ReconcileReport summarises a reconciliation pass.
type ReconcileReport struct {
	Scanned       int
	Known         int
	MarkedUnknown int
}

// Reconcile scans every Patient account of programID and marks addresses
// with no recorded seed as unknown. The index is persisted when it changed.
func Reconcile(ctx context.Context, ix *Index, scanner AccountScanner, programID solana.PublicKey) (*ReconcileReport, error) {
	accounts, err := scanner.GetProgramAccounts(ctx, programID, chain.MemcmpFilter{
		Offset: 0,
		Bytes:  program.PatientDiscriminator[:],
	})
	if err != nil {
		return nil, fmt.Errorf("scan patient accounts: %w", err)
	}

	report := &ReconcileReport{Scanned: len(accounts)}
	for _, acct := range accounts {
		if ix.MarkUnknown(acct.Address) {
			report.MarkedUnknown++
			ix.logger.Warn("patient account has no recorded seed", zap.String("address", acct.Address.String()))
			continue
		}
		report.Known++
	}
	if report.MarkedUnknown > 0 {
		if err := ix.Persist(ctx); err != nil {
			return report, fmt.Errorf("persist after reconcile: %w", err)
		}
	}
	ix.logger.Info("seed index reconciled",
		zap.Int("scanned", report.Scanned),
		zap.Int("known", report.Known),
		zap.Int("marked_unknown", report.MarkedUnknown),
	)
	return report, nil
}
