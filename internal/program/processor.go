package program

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Account is the ledger's view of a single account.
type Account struct {
	Owner solana.PublicKey
	Data  []byte
}

// AccountStore is the state an instruction executes against. Stores made by
// a failing instruction must be discarded by the caller.
type AccountStore interface {
	Load(address solana.PublicKey) (*Account, bool)
	Store(address solana.PublicKey, acct *Account)
}

// Instruction is a decompiled instruction ready for execution.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []*solana.AccountMeta
	Data      []byte
}

// Env carries the execution context of one instruction.
type Env struct {
	Accounts AccountStore
	Now      time.Time
	Log      func(msg string)
}

func (e *Env) logf(format string, args ...any) {
	if e.Log != nil {
		e.Log(fmt.Sprintf(format, args...))
	}
}

// Program executes instructions addressed to one program ID.
type Program struct {
	id     solana.PublicKey
	layout Layout
}

// New returns a Program deployed at id using the V1 account layout.
func New(id solana.PublicKey) *Program {
	return &Program{id: id, layout: V1}
}

// ID returns the program address.
func (p *Program) ID() solana.PublicKey { return p.id }

// Process executes one instruction.
func (p *Program) Process(env *Env, ix Instruction) error {
	if !ix.ProgramID.Equals(p.id) {
		return fmt.Errorf("instruction targets program %s, not %s", ix.ProgramID, p.id)
	}
	name, payload, err := DecodeInstruction(ix.Data)
	if err != nil {
		return err
	}
	env.logf("Instruction: %s", name)

	switch name {
	case InstructionInitialize:
		return p.initialize(env, ix.Accounts)
	case InstructionAddReadAuthority:
		return p.changeAuthority(env, ix.Accounts, payload, true, true)
	case InstructionAddWriteAuthority:
		return p.changeAuthority(env, ix.Accounts, payload, false, true)
	case InstructionRemoveReadAuthority:
		return p.changeAuthority(env, ix.Accounts, payload, true, false)
	case InstructionRemoveWriteAuthority:
		return p.changeAuthority(env, ix.Accounts, payload, false, false)
	case InstructionCreatePatient:
		return p.writePatient(env, ix.Accounts, payload, true)
	case InstructionUpdatePatient:
		return p.writePatient(env, ix.Accounts, payload, false)
	case InstructionGetPatient:
		return p.getPatient(env, ix.Accounts)
	}
	return ErrInstructionFallbackNotFound
}

// ── Instructions ─────────────────────────────────────────────────────────

func (p *Program) initialize(env *Env, metas []*solana.AccountMeta) error {
	if len(metas) < 4 {
		return ErrNotEnoughAccountKeys
	}
	authority, payer, adminMeta, system := metas[0], metas[1], metas[2], metas[3]
	if err := signerMut(authority, true); err != nil {
		return err
	}
	if err := signerMut(payer, true); err != nil {
		return err
	}
	if err := p.checkAdminMeta(adminMeta, true); err != nil {
		return err
	}
	if !system.PublicKey.Equals(solana.SystemProgramID) {
		return ErrConstraintAddress
	}

	admin, exists, err := p.loadAdmin(env, adminMeta.PublicKey)
	if err != nil {
		return err
	}
	if exists && !admin.Authority.IsZero() {
		if !admin.Authority.Equals(authority.PublicKey) {
			return ErrUnauthorized
		}
		env.logf("Admin already initialized for %s", authority.PublicKey)
		return nil
	}

	admin = &Admin{
		Authority:        authority.PublicKey,
		ReadAuthorities:  []solana.PublicKey{authority.PublicKey},
		WriteAuthorities: []solana.PublicKey{authority.PublicKey},
	}
	if err := p.storeAdmin(env, adminMeta.PublicKey, admin); err != nil {
		return err
	}
	env.logf("Admin initialized with authority %s", authority.PublicKey)
	return nil
}

func (p *Program) changeAuthority(env *Env, metas []*solana.AccountMeta, payload []byte, isRead, add bool) error {
	var args AuthorityArgs
	if err := decodeArgs(payload, &args); err != nil {
		return err
	}
	if len(metas) < 5 {
		return ErrNotEnoughAccountKeys
	}
	authority, payer, adminMeta, historyMeta, system := metas[0], metas[1], metas[2], metas[3], metas[4]
	if err := signerMut(authority, false); err != nil {
		return err
	}
	if err := signerMut(payer, true); err != nil {
		return err
	}
	if err := p.checkAdminMeta(adminMeta, true); err != nil {
		return err
	}
	if !historyMeta.IsWritable {
		return ErrConstraintMut
	}
	if !system.PublicKey.Equals(solana.SystemProgramID) {
		return ErrConstraintAddress
	}

	admin, exists, err := p.loadAdmin(env, adminMeta.PublicKey)
	if err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotInitialized
	}
	if !admin.Authority.Equals(authority.PublicKey) {
		return ErrUnauthorized
	}
	wantHistory, _, err := HistoryAddress(p.id, admin.Authority)
	if err != nil {
		return err
	}
	if !historyMeta.PublicKey.Equals(wantHistory) {
		return ErrConstraintSeeds
	}

	list := &admin.WriteAuthorities
	kind := "write"
	if isRead {
		list = &admin.ReadAuthorities
		kind = "read"
	}

	if add {
		if indexOf(*list, args.Authority) >= 0 {
			env.logf("%s authority %s already present", kind, args.Authority)
			return nil
		}
		if len(*list) >= MaxAuthorities {
			return ErrAuthorityListFull
		}
		*list = append(*list, args.Authority)
	} else if i := indexOf(*list, args.Authority); i >= 0 {
		last := len(*list) - 1
		(*list)[i] = (*list)[last]
		*list = (*list)[:last]
	} else {
		env.logf("%s authority %s not present", kind, args.Authority)
	}

	history, err := p.loadHistory(env, historyMeta.PublicKey, admin.Authority)
	if err != nil {
		return err
	}
	history.Entries = append(history.Entries, HistoryEntry{
		Admin:     admin.Authority,
		Authority: args.Authority,
		Added:     add,
		IsRead:    isRead,
		Timestamp: env.Now.Unix(),
	})
	if n := len(history.Entries); n > MaxHistoryEntries {
		history.Entries = append([]HistoryEntry(nil), history.Entries[n-MaxHistoryEntries:]...)
	}

	if err := p.storeAdmin(env, adminMeta.PublicKey, admin); err != nil {
		return err
	}
	if err := p.storeHistory(env, historyMeta.PublicKey, history); err != nil {
		return err
	}
	verb := "removed"
	if add {
		verb = "added"
	}
	env.logf("%s authority %s %s", kind, args.Authority, verb)
	return nil
}

func (p *Program) writePatient(env *Env, metas []*solana.AccountMeta, payload []byte, create bool) error {
	var args PatientArgs
	if err := decodeArgs(payload, &args); err != nil {
		return err
	}
	if len(metas) < 5 {
		return ErrNotEnoughAccountKeys
	}
	patientMeta, seedMeta, authority, adminMeta, system := metas[0], metas[1], metas[2], metas[3], metas[4]
	if !patientMeta.IsWritable {
		return ErrConstraintMut
	}
	if err := signerMut(authority, true); err != nil {
		return err
	}
	if err := p.checkAdminMeta(adminMeta, false); err != nil {
		return err
	}
	if !system.PublicKey.Equals(solana.SystemProgramID) {
		return ErrConstraintAddress
	}

	admin, exists, err := p.loadAdmin(env, adminMeta.PublicKey)
	if err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotInitialized
	}
	if !admin.IsWriter(authority.PublicKey) {
		return ErrUnauthorized
	}
	want, _, err := PatientAddress(p.id, admin.Authority, seedMeta.PublicKey)
	if err != nil {
		return err
	}
	if !patientMeta.PublicKey.Equals(want) {
		return ErrConstraintSeeds
	}
	if len(args.EncryptedData) > MaxEncryptedDataLen {
		return ErrDataTooLong
	}

	current, exists, err := p.loadPatient(env, patientMeta.PublicKey)
	if err != nil {
		return err
	}
	switch {
	case create && exists:
		return ErrPatientAlreadyExists
	case !create && (!exists || !current.IsInitialized):
		return ErrPatientDoesNotExist
	}

	record := &Patient{
		PatientAddress: patientMeta.PublicKey,
		IsInitialized:  true,
		EncryptedData:  args.EncryptedData,
		DataHash:       DataHash(args.EncryptedData),
	}
	data, err := p.layout.EncodePatient(record)
	if err != nil {
		return err
	}
	env.Accounts.Store(patientMeta.PublicKey, &Account{Owner: p.id, Data: data})
	if create {
		env.logf("Patient %s created by %s", patientMeta.PublicKey, authority.PublicKey)
	} else {
		env.logf("Patient %s updated by %s", patientMeta.PublicKey, authority.PublicKey)
	}
	return nil
}

func (p *Program) getPatient(env *Env, metas []*solana.AccountMeta) error {
	if len(metas) < 4 {
		return ErrNotEnoughAccountKeys
	}
	patientMeta, seedMeta, reader, adminMeta := metas[0], metas[1], metas[2], metas[3]
	if err := signerMut(reader, false); err != nil {
		return err
	}
	if err := p.checkAdminMeta(adminMeta, false); err != nil {
		return err
	}

	admin, exists, err := p.loadAdmin(env, adminMeta.PublicKey)
	if err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotInitialized
	}
	if !admin.IsReader(reader.PublicKey) {
		return ErrUnauthorized
	}
	want, _, err := PatientAddress(p.id, admin.Authority, seedMeta.PublicKey)
	if err != nil {
		return err
	}
	if !patientMeta.PublicKey.Equals(want) {
		return ErrConstraintSeeds
	}
	record, exists, err := p.loadPatient(env, patientMeta.PublicKey)
	if err != nil {
		return err
	}
	if !exists || !record.IsInitialized {
		return ErrPatientDoesNotExist
	}
	if err := record.Verify(); err != nil {
		return err
	}
	env.logf("Patient %s read by %s", patientMeta.PublicKey, reader.PublicKey)
	return nil
}

// ── Account helpers ──────────────────────────────────────────────────────

func signerMut(m *solana.AccountMeta, writable bool) error {
	if !m.IsSigner {
		return ErrConstraintSigner
	}
	if writable && !m.IsWritable {
		return ErrConstraintMut
	}
	return nil
}

func (p *Program) checkAdminMeta(m *solana.AccountMeta, writable bool) error {
	want, _, err := AdminAddress(p.id)
	if err != nil {
		return err
	}
	if !m.PublicKey.Equals(want) {
		return ErrConstraintSeeds
	}
	if writable && !m.IsWritable {
		return ErrConstraintMut
	}
	return nil
}

func (p *Program) owned(env *Env, address solana.PublicKey) (*Account, bool, error) {
	acct, ok := env.Accounts.Load(address)
	if !ok || len(acct.Data) == 0 {
		return nil, false, nil
	}
	if !acct.Owner.Equals(p.id) {
		return nil, false, ErrAccountOwnedByWrongProgram
	}
	return acct, true, nil
}

func (p *Program) loadAdmin(env *Env, address solana.PublicKey) (*Admin, bool, error) {
	acct, ok, err := p.owned(env, address)
	if err != nil || !ok {
		return nil, false, err
	}
	admin, err := p.layout.DecodeAdmin(acct.Data)
	if err != nil {
		return nil, false, err
	}
	return admin, true, nil
}

func (p *Program) loadHistory(env *Env, address, authority solana.PublicKey) (*AuthorityHistory, error) {
	acct, ok, err := p.owned(env, address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &AuthorityHistory{Admin: authority}, nil
	}
	return p.layout.DecodeHistory(acct.Data)
}

func (p *Program) loadPatient(env *Env, address solana.PublicKey) (*Patient, bool, error) {
	acct, ok, err := p.owned(env, address)
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := p.layout.DecodePatient(acct.Data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

func (p *Program) storeAdmin(env *Env, address solana.PublicKey, admin *Admin) error {
	data, err := p.layout.EncodeAdmin(admin)
	if err != nil {
		return err
	}
	env.Accounts.Store(address, &Account{Owner: p.id, Data: data})
	return nil
}

func (p *Program) storeHistory(env *Env, address solana.PublicKey, h *AuthorityHistory) error {
	data, err := p.layout.EncodeHistory(h)
	if err != nil {
		return err
	}
	env.Accounts.Store(address, &Account{Owner: p.id, Data: data})
	return nil
}
