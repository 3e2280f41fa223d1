// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserNotFound       = "auth.user_not_found"
	KeyAuthUserExists         = "auth.user_exists"
	KeyAuthAccountDisabled    = "auth.account_disabled"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthRegisterSuccess    = "auth.register_success"

	// User Management
	KeyUserProfileUpdated = "user.profile_updated"
	KeyUserNotFound       = "user.not_found"

	// Documents
	KeyDocumentUploaded  = "document.uploaded"
	KeyDocumentDeleted   = "document.deleted"
	KeyDocumentNotFound  = "document.not_found"
	KeyDocumentInUse     = "document.in_use"
	KeyDocumentForbidden = "document.forbidden"

	// Approvals
	KeyApprovalCreated      = "approval.created"
	KeyApprovalNotFound     = "approval.not_found"
	KeyApprovalCancelled    = "approval.cancelled"
	KeyApprovalDeleted      = "approval.deleted"
	KeyApprovalClosed       = "approval.closed"
	KeyApprovalTokenInvalid = "approval.token_invalid"
	KeyApprovalSubmitted    = "approval.decision_submitted"
	KeyApprovalForbidden    = "approval.forbidden"

	// Admin
	KeyAdminActionSuccess = "admin.action_success"
	KeyAccessDenied       = "admin.access_denied"
	KeyAdminUserUpdated   = "admin.user_updated"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationTooLong  = "validation.too_long"
	KeyValidationEmail    = "validation.invalid_email"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"
	KeyFileInvalidType   = "file.invalid_type"
	KeyFileTooLarge      = "file.too_large"

	// Notifications
	KeyNotificationSent   = "notification.sent"
	KeyNotificationFailed = "notification.failed"
)
