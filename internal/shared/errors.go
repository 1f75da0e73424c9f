package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated indicates a missing or expired session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAccountInactive indicates the account has been deactivated.
	ErrAccountInactive = errors.New("account is inactive")
	// ErrPasswordResetRequired indicates the account may only change its password.
	ErrPasswordResetRequired = errors.New("password reset required")
	// ErrAccessDenied indicates a denied permission check.
	ErrAccessDenied = errors.New("access denied")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps internal errors to messages that can be shown to
// end users without leaking store or infrastructure details.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record does not exist."
	case errors.Is(err, ErrDuplicate):
		return "A record with the same identifier already exists."
	case errors.Is(err, ErrInvalidCredentials):
		return "Email or password is incorrect."
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrAccountInactive):
		return "This account has been deactivated. Contact an administrator."
	case errors.Is(err, ErrPasswordResetRequired):
		return "You must change your password before continuing."
	case errors.Is(err, ErrAccessDenied):
		return "You do not have permission to perform this action."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
