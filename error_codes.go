package networking

// ErrorCode is a business error code reported by the backend in the
// responseObject of an ERROR response.
type ErrorCode string

// Generic errors.
const (
	// ErrorCodeGeneric is reported when an unexpected error happened.
	ErrorCodeGeneric ErrorCode = "ERROR_GENERIC"
	// ErrorCodeInvalidRequest is reported when the request object is missing or malformed.
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrorCodeEncryption is reported when encryption or decryption fails.
	ErrorCodeEncryption ErrorCode = "ERR_ENCRYPTION"
	// ErrorCodeSecureVault is reported when secure vault unlocking fails.
	ErrorCodeSecureVault ErrorCode = "ERR_SECURE_VAULT"
	ErrorCodeNotFound    ErrorCode = "ERR_NOT_FOUND"
	ErrorCodeInternal    ErrorCode = "ERR_INTERNAL"
)

// Authentication errors.
const (
	// ErrorCodeAuthFail is a general authentication failure (wrong password,
	// wrong activation state, etc.).
	ErrorCodeAuthFail ErrorCode = "POWERAUTH_AUTH_FAIL"
	// ErrorCodeInvalidActivation is reported when the activation differs from the configured one.
	ErrorCodeInvalidActivation ErrorCode = "INVALID_ACTIVATION"
	ErrorCodeAuthentication    ErrorCode = "ERR_AUTHENTICATION"
	ErrorCodeActivation        ErrorCode = "ERR_ACTIVATION"
	ErrorCodeToken             ErrorCode = "ERR_TOKEN"
	ErrorCodeSignature         ErrorCode = "ERR_SIGNATURE"
	ErrorCodeUnauthorized      ErrorCode = "ERR_UNAUTHORIZED"
)

// Push errors.
const (
	ErrorCodePushRegistrationFailed   ErrorCode = "PUSH_REGISTRATION_FAILED"
	ErrorCodePushDeregistrationFailed ErrorCode = "PUSH_DEREGISTRATION_FAILED"
)

// Operation lifecycle errors.
const (
	ErrorCodeOperationAlreadyFinished ErrorCode = "OPERATION_ALREADY_FINISHED"
	ErrorCodeOperationAlreadyFailed   ErrorCode = "OPERATION_ALREADY_FAILED"
	ErrorCodeOperationAlreadyCanceled ErrorCode = "OPERATION_ALREADY_CANCELED"
	ErrorCodeOperationExpired         ErrorCode = "OPERATION_EXPIRED"
	ErrorCodeOperationNotFound        ErrorCode = "OPERATION_NOT_FOUND"
	ErrorCodeOperationFailed          ErrorCode = "OPERATION_FAILED"
)

// Activation spawn, onboarding and identity verification errors.
const (
	ErrorCodeActivationCodeFailed         ErrorCode = "ACTIVATION_CODE_FAILED"
	ErrorCodeOnboardingFailed             ErrorCode = "ONBOARDING_FAILED"
	ErrorCodeInvalidDocument              ErrorCode = "INVALID_DOCUMENT"
	ErrorCodeIdentityVerificationFailed   ErrorCode = "IDENTITY_VERIFICATION_FAILED"
	ErrorCodeOnboardingOTPFailed          ErrorCode = "ONBOARDING_OTP_FAILED"
	ErrorCodeOnboardingProcessLimit       ErrorCode = "ONBOARDING_PROCESS_LIMIT_REACHED"
	ErrorCodePresenceCheckFailed          ErrorCode = "PRESENCE_CHECK_FAILED"
)

// Rate limiting errors.
const (
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrorCodeTooManyRequests   ErrorCode = "TOO_MANY_REQUESTS"
)

var knownErrorCodes = [...]ErrorCode{
	ErrorCodeGeneric,
	ErrorCodeInvalidRequest,
	ErrorCodeEncryption,
	ErrorCodeSecureVault,
	ErrorCodeNotFound,
	ErrorCodeInternal,

	ErrorCodeAuthFail,
	ErrorCodeInvalidActivation,
	ErrorCodeAuthentication,
	ErrorCodeActivation,
	ErrorCodeToken,
	ErrorCodeSignature,
	ErrorCodeUnauthorized,

	ErrorCodePushRegistrationFailed,
	ErrorCodePushDeregistrationFailed,

	ErrorCodeOperationAlreadyFinished,
	ErrorCodeOperationAlreadyFailed,
	ErrorCodeOperationAlreadyCanceled,
	ErrorCodeOperationExpired,
	ErrorCodeOperationNotFound,
	ErrorCodeOperationFailed,

	ErrorCodeActivationCodeFailed,
	ErrorCodeOnboardingFailed,
	ErrorCodeInvalidDocument,
	ErrorCodeIdentityVerificationFailed,
	ErrorCodeOnboardingOTPFailed,
	ErrorCodeOnboardingProcessLimit,
	ErrorCodePresenceCheckFailed,

	ErrorCodeRateLimitExceeded,
	ErrorCodeTooManyRequests,
}

var errorCodeRegistry = func() map[string]ErrorCode {
	m := make(map[string]ErrorCode, len(knownErrorCodes))
	for _, code := range knownErrorCodes {
		m[string(code)] = code
	}
	return m
}()

// ParseErrorCode looks up a backend code in the registry. The match is exact
// and case-sensitive; unknown codes report false.
func ParseErrorCode(code string) (ErrorCode, bool) {
	ec, ok := errorCodeRegistry[code]
	return ec, ok
}

// KnownErrorCodes returns a copy of the registry contents.
func KnownErrorCodes() []ErrorCode {
	out := make([]ErrorCode, len(knownErrorCodes))
	copy(out, knownErrorCodes[:])
	return out
}

func (c ErrorCode) String() string {
	return string(c)
}
