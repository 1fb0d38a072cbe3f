package program

import "fmt"

// Error is a program failure carrying the numeric code the ledger reports
// back as "custom program error: 0x<hex>".
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// Is matches any *Error with the same code, so errors rebuilt from a cluster
// response compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Framework errors.
var (
	ErrInstructionFallbackNotFound  = &Error{101, "InstructionFallbackNotFound", "Fallback functions are not supported"}
	ErrInstructionDidNotDeserialize = &Error{102, "InstructionDidNotDeserialize", "The program could not deserialize the given instruction"}
	ErrConstraintMut                = &Error{2000, "ConstraintMut", "A mut constraint was violated"}
	ErrConstraintSigner             = &Error{2002, "ConstraintSigner", "A signer constraint was violated"}
	ErrConstraintSeeds              = &Error{2006, "ConstraintSeeds", "A seeds constraint was violated"}
	ErrConstraintAddress            = &Error{2012, "ConstraintAddress", "An address constraint was violated"}
	ErrAccountDiscriminatorMismatch = &Error{3002, "AccountDiscriminatorMismatch", "8 byte discriminator did not match what was expected"}
	ErrAccountDidNotDeserialize     = &Error{3003, "AccountDidNotDeserialize", "Failed to deserialize the account"}
	ErrNotEnoughAccountKeys         = &Error{3005, "AccountNotEnoughKeys", "Not enough account keys given to the instruction"}
	ErrAccountOwnedByWrongProgram   = &Error{3007, "AccountOwnedByWrongProgram", "The given account is owned by a different program than expected"}
	ErrAccountNotInitialized        = &Error{3012, "AccountNotInitialized", "The program expected this account to be already initialized"}
)

// Program errors.
var (
	ErrUnauthorized         = &Error{6000, "Unauthorized", "Unauthorized access"}
	ErrPatientAlreadyExists = &Error{6001, "PatientAlreadyExists", "Patient already exists"}
	ErrPatientDoesNotExist  = &Error{6002, "PatientDoesNotExist", "Patient does not exist"}
	ErrDataIntegrity        = &Error{6003, "DataIntegrity", "Stored data does not match its digest"}
	ErrAuthorityListFull    = &Error{6004, "AuthorityListFull", "Authority list is at capacity"}
	ErrDataTooLong          = &Error{6005, "DataTooLong", "Encrypted data exceeds the account capacity"}
)

var knownErrors = []*Error{
	ErrInstructionFallbackNotFound,
	ErrInstructionDidNotDeserialize,
	ErrConstraintMut,
	ErrConstraintSigner,
	ErrConstraintSeeds,
	ErrConstraintAddress,
	ErrAccountDiscriminatorMismatch,
	ErrAccountDidNotDeserialize,
	ErrNotEnoughAccountKeys,
	ErrAccountOwnedByWrongProgram,
	ErrAccountNotInitialized,
	ErrUnauthorized,
	ErrPatientAlreadyExists,
	ErrPatientDoesNotExist,
	ErrDataIntegrity,
	ErrAuthorityListFull,
	ErrDataTooLong,
}

// ErrorFromCode returns the error registered under code. Unknown codes yield
// a generic *Error so callers still see the number.
func ErrorFromCode(code uint32) (*Error, bool) {
	for _, e := range knownErrors {
		if e.Code == code {
			return e, true
		}
	}
	return &Error{Code: code, Name: "Unknown", Msg: fmt.Sprintf("custom program error: 0x%x", code)}, false
}
