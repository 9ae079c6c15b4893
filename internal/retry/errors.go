package retry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrAuthExpired marks failures caused by an expired or rejected session token
	ErrAuthExpired = errors.New("auth expired")

	// ErrRetriesExhausted is matched by every *RetriesExhaustedError
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// AuthExpiredCode is the backend error code for a rejected JWT
const AuthExpiredCode = "PGRST301"

// authExpiredPatterns are matched case-sensitively against error messages
var authExpiredPatterns = []string{
	"JWT expired",
	"invalid JWT",
	"invalid claims",
}

// Kind classifies an operation failure
type Kind int

const (
	KindOther Kind = iota
	KindAuthExpired
)

func (k Kind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	default:
		return "other"
	}
}

// coder is implemented by backend errors that carry a machine-readable code
type coder interface {
	ErrorCode() string
}

// Classify decides whether err should trigger a session refresh
func Classify(err error) Kind {
	if IsAuthExpired(err) {
		return KindAuthExpired
	}
	return KindOther
}

// IsAuthExpired reports whether err signals an expired or invalid session token
func IsAuthExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthExpired) ||
		errors.Is(err, jwt.ErrTokenExpired) ||
		errors.Is(err, jwt.ErrTokenInvalidClaims) {
		return true
	}
	var c coder
	if errors.As(err, &c) && c.ErrorCode() == AuthExpiredCode {
		return true
	}
	msg := err.Error()
	for _, p := range authExpiredPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RetriesExhaustedError is returned when an auth-expired operation still fails after
// every allowed attempt. It unwraps to the last operation error.
type RetriesExhaustedError struct {
	Attempts        int
	RefreshFailures int
	Err             error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// InvalidPolicyError reports a retry policy that cannot be executed
type InvalidPolicyError struct {
	Reason string
}

func (e *InvalidPolicyError) Error() string {
	return "invalid retry policy: " + e.Reason
}
