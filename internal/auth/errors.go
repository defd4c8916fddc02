package auth

import "errors"

type Code string

const (
	CodeUserNotFound       Code = "user-not-found"
	CodeWrongPassword      Code = "wrong-password"
	CodeInvalidEmail       Code = "invalid-email"
	CodeTooManyRequests    Code = "too-many-requests"
	CodeEmailAlreadyInUse  Code = "email-already-in-use"
	CodeWeakPassword       Code = "weak-password"
	CodeInvalidCredentials Code = "invalid-credential"
)

// Error is an identity provider failure with a stable code.
type Error struct {
	Code Code
}

func (e *Error) Error() string {
	return "auth: " + string(e.Code)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Message is the text shown to the user for the failure.
func (e *Error) Message() string {
	switch e.Code {
	case CodeUserNotFound:
		return "No account found with this email. Please register first."
	case CodeWrongPassword:
		return "Incorrect password. Please try again."
	case CodeInvalidEmail:
		return "Please enter a valid email address."
	case CodeTooManyRequests:
		return "Too many attempts. Please wait a few minutes and try again."
	case CodeEmailAlreadyInUse:
		return "An account with this email already exists. Please sign in instead."
	case CodeWeakPassword:
		return "Password is too weak. Use at least 6 characters."
	default:
		return "Your session is not valid. Please sign in again."
	}
}

func newError(code Code) error { return &Error{Code: code} }

// MessageFor maps any auth failure to user-readable text.
func MessageFor(err error) string {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Message()
	}
	return "Something went wrong. Please try again later."
}
