package handler

import (
	"context"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/apperr"
	"github.com/jmerrifield20/MedRecordLedger/internal/identity"
	"github.com/jmerrifield20/MedRecordLedger/internal/program"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/model"
)

// transactionSvc is satisfied by *service.RegistryService.
type transactionSvc interface {
	PrepareInitialize(ctx context.Context, caller solana.PublicKey) (*model.PreparedTransaction, error)
	PrepareAuthorityChange(ctx context.Context, caller solana.PublicKey, instruction, target string, request any) (*model.PreparedTransaction, error)
	PrepareCreatePatient(ctx context.Context, caller solana.PublicKey, req *model.CreatePatientRequest) (*model.PreparedPatientTransaction, error)
	PrepareUpdatePatient(ctx context.Context, caller solana.PublicKey, req *model.UpdatePatientRequest) (*model.PreparedPatientTransaction, error)
	PreparePatientRead(ctx context.Context, caller solana.PublicKey, req *model.PatientLookupRequest) (*model.PreparedPatientTransaction, error)
	Submit(ctx context.Context, req *model.SubmitTransactionRequest) (*model.SubmitTransactionResponse, string, error)
}

// TransactionHandler serves the prepare and submit phases of the signing
// protocol.
type TransactionHandler struct {
	svc    transactionSvc
	logger *zap.Logger
}

// NewTransactionHandler creates a TransactionHandler.
func NewTransactionHandler(svc transactionSvc, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{svc: svc, logger: logger}
}

// Register mounts the routes on rg behind auth.
func (h *TransactionHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	tx := rg.Group("/transactions", auth)
	{
		prep := tx.Group("/prepare")
		prep.POST("/initialize", h.PrepareInitialize)
		prep.POST("/add-read-authority", h.prepareAdd(program.InstructionAddReadAuthority))
		prep.POST("/add-write-authority", h.prepareAdd(program.InstructionAddWriteAuthority))
		prep.POST("/remove-read-authority", h.prepareRemove(program.InstructionRemoveReadAuthority))
		prep.POST("/remove-write-authority", h.prepareRemove(program.InstructionRemoveWriteAuthority))
		prep.POST("/create-patient", h.PrepareCreatePatient)
		prep.POST("/update-patient", h.PrepareUpdatePatient)
		prep.POST("/get-patient", h.PreparePatientRead)

		tx.POST("/submit", h.Submit)
	}
}

// PrepareInitialize handles POST /transactions/prepare/initialize.
func (h *TransactionHandler) PrepareInitialize(c *gin.Context) {
	caller, ok := h.caller(c, "")
	if !ok {
		return
	}
	resp, err := h.svc.PrepareInitialize(c.Request.Context(), caller)
	h.respondPrepared(c, program.InstructionInitialize, resp, err)
}

func (h *TransactionHandler) prepareAdd(instruction string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.AddAuthorityRequest
		if !bindJSON(c, h.logger, &req) {
			return
		}
		caller, ok := h.caller(c, req.UserPubkey)
		if !ok {
			return
		}
		req.UserPubkey = caller.String()
		resp, err := h.svc.PrepareAuthorityChange(c.Request.Context(), caller, instruction, req.NewAuthority, &req)
		h.respondPrepared(c, instruction, resp, err)
	}
}

func (h *TransactionHandler) prepareRemove(instruction string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.RemoveAuthorityRequest
		if !bindJSON(c, h.logger, &req) {
			return
		}
		caller, ok := h.caller(c, req.UserPubkey)
		if !ok {
			return
		}
		req.UserPubkey = caller.String()
		resp, err := h.svc.PrepareAuthorityChange(c.Request.Context(), caller, instruction, req.AuthorityToRemove, &req)
		h.respondPrepared(c, instruction, resp, err)
	}
}

// PrepareCreatePatient handles POST /transactions/prepare/create-patient.
func (h *TransactionHandler) PrepareCreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	caller, ok := h.caller(c, req.UserPubkey)
	if !ok {
		return
	}
	resp, err := h.svc.PrepareCreatePatient(c.Request.Context(), caller, &req)
	h.respondPatient(c, program.InstructionCreatePatient, resp, err)
}

// PrepareUpdatePatient handles POST /transactions/prepare/update-patient.
func (h *TransactionHandler) PrepareUpdatePatient(c *gin.Context) {
	var req model.UpdatePatientRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	caller, ok := h.caller(c, req.UserPubkey)
	if !ok {
		return
	}
	resp, err := h.svc.PrepareUpdatePatient(c.Request.Context(), caller, &req)
	h.respondPatient(c, program.InstructionUpdatePatient, resp, err)
}

// PreparePatientRead handles POST /transactions/prepare/get-patient.
func (h *TransactionHandler) PreparePatientRead(c *gin.Context) {
	var req model.PatientLookupRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	caller, ok := h.caller(c, req.UserPubkey)
	if !ok {
		return
	}
	resp, err := h.svc.PreparePatientRead(c.Request.Context(), caller, &req)
	h.respondPatient(c, program.InstructionGetPatient, resp, err)
}

// Submit handles POST /transactions/submit.
func (h *TransactionHandler) Submit(c *gin.Context) {
	var req model.SubmitTransactionRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	resp, txType, err := h.svc.Submit(c.Request.Context(), &req)
	if err != nil {
		RecordTransaction(txType, "submit_failed")
		respondError(c, h.logger, err)
		return
	}
	RecordTransaction(txType, "confirmed")
	c.JSON(http.StatusOK, resp)
}

// caller returns the session wallet. A user_pubkey in the body must name
// the same wallet.
func (h *TransactionHandler) caller(c *gin.Context, claimed string) (solana.PublicKey, bool) {
	wallet, ok := identity.WalletFromCtx(c)
	if !ok {
		respondError(c, h.logger, apperr.Unauthorized("session required"))
		return solana.PublicKey{}, false
	}
	if claimed != "" && claimed != wallet.String() {
		respondError(c, h.logger, apperr.Unauthorized("user_pubkey does not match the session wallet"))
		return solana.PublicKey{}, false
	}
	return wallet, true
}

func (h *TransactionHandler) respondPrepared(c *gin.Context, txType string, resp *model.PreparedTransaction, err error) {
	if err != nil {
		RecordTransaction(txType, "prepare_failed")
		respondError(c, h.logger, err)
		return
	}
	RecordTransaction(txType, "prepared")
	c.JSON(http.StatusOK, resp)
}

func (h *TransactionHandler) respondPatient(c *gin.Context, txType string, resp *model.PreparedPatientTransaction, err error) {
	if err != nil {
		RecordTransaction(txType, "prepare_failed")
		respondError(c, h.logger, err)
		return
	}
	RecordTransaction(txType, "prepared")
	c.JSON(http.StatusOK, resp)
}
