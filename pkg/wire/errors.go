package wire

// ErrorCategory is the top-level classification every RPCError carries (§7).
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "VALIDATION"
	CategoryRateLimit  ErrorCategory = "RATE_LIMIT"
	CategoryAuth       ErrorCategory = "AUTH"
	CategorySystem     ErrorCategory = "SYSTEM"
	CategoryBusiness   ErrorCategory = "BUSINESS"
)

// Code is one of the representative codes enumerated in §7.
type Code string

const (
	CodeMoveInvalidDirection   Code = "MOVE_INVALID_DIRECTION"
	CodeMoveRateLimited        Code = "MOVE_RATE_LIMITED"
	CodeMoveCollisionDetected  Code = "MOVE_COLLISION_DETECTED"
	CodeEquipInvalidSlot       Code = "EQ_INVALID_SLOT"
	CodeEquipItemNotEquipable  Code = "EQ_ITEM_NOT_EQUIPABLE"
	CodeEquipCannotUnequipFull Code = "EQ_CANNOT_UNEQUIP_FULL_INV"
	CodeEquipLevelTooLow       Code = "EQ_LEVEL_REQUIREMENT_NOT_MET"
	CodeInvInvalidSlot         Code = "INV_INVALID_SLOT"
	CodeInvSlotEmpty           Code = "INV_SLOT_EMPTY"
	CodeInvInsufficientQty     Code = "INV_INSUFFICIENT_QUANTITY"
	CodeInvInventoryFull       Code = "INV_INVENTORY_FULL"
	CodeMapInvalidCoords       Code = "MAP_INVALID_COORDS"
	CodeGroundItemNotFound     Code = "GROUND_ITEM_NOT_FOUND"
	CodeSysInternalError       Code = "SYS_INTERNAL_ERROR"
	CodeAuthInvalidToken       Code = "AUTH_INVALID_TOKEN"
	CodeAuthRequired           Code = "AUTH_REQUIRED"
	CodeAuthForbidden          Code = "AUTH_FORBIDDEN"
	CodeCombatInvalidTarget    Code = "COMBAT_INVALID_TARGET"
	CodeCombatOutOfRange       Code = "COMBAT_OUT_OF_RANGE"
	CodeCombatNotAttackable    Code = "COMBAT_NOT_ATTACKABLE"
	CodeCombatPlayerTarget     Code = "COMBAT_PVP_NOT_SUPPORTED"
	CodeCombatRateLimited      Code = "COMBAT_RATE_LIMITED"
	CodeChatInvalidChannel     Code = "CHAT_INVALID_CHANNEL"
	CodeMalformedMessage       Code = "MALFORMED_MESSAGE"
	CodeUnknownMessageType     Code = "UNKNOWN_MESSAGE_TYPE"
)

// RPCError is the taxonomy every failure surfaced to the client carries.
type RPCError struct {
	Code            Code          `json:"code"`
	Category        ErrorCategory `json:"category"`
	Message         string        `json:"message"`
	Details         any           `json:"details,omitempty"`
	SuggestedAction string        `json:"suggested_action,omitempty"`
}

func (e RPCError) Error() string {
	return string(e.Category) + "/" + string(e.Code) + ": " + e.Message
}

// NewValidationError builds a VALIDATION-category RPCError.
func NewValidationError(code Code, message string, details any) RPCError {
	return RPCError{Code: code, Category: CategoryValidation, Message: message, Details: details}
}

// NewRateLimitError builds a RATE_LIMIT-category RPCError.
func NewRateLimitError(code Code, message string, cooldownRemainingMS int64) RPCError {
	return RPCError{
		Code:     code,
		Category: CategoryRateLimit,
		Message:  message,
		Details:  map[string]int64{"cooldown_remaining_ms": cooldownRemainingMS},
	}
}

// NewSystemError builds a SYSTEM-category RPCError with details redacted;
// full detail belongs in the server log, not the wire response (§7).
func NewSystemError() RPCError {
	return RPCError{
		Code:     CodeSysInternalError,
		Category: CategorySystem,
		Message:  "an internal error occurred",
	}
}

// NewAuthError builds an AUTH-category RPCError (handshake/authorization
// failures, §4.2/§4.5.6).
func NewAuthError(code Code, message string) RPCError {
	return RPCError{Code: code, Category: CategoryAuth, Message: message}
}

// NewBusinessError builds a BUSINESS-category RPCError. Per §7 the source
// uses SYS_INTERNAL_ERROR/VALIDATION as a placeholder for these; this
// implementation assigns the BUSINESS category instead, so handlers and
// tests can distinguish "malformed
// request" from "mechanically valid but against the rules right now".
func NewBusinessError(code Code, message string) RPCError {
	return RPCError{Code: code, Category: CategoryBusiness, Message: message}
}
