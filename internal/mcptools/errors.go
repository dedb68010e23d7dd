package mcptools

import (
	"errors"
	"fmt"

	ferrors "github.com/patentfusion/rrfusion/internal/errors"
)

// Custom MCP error codes for the fusion engine, following the same JSON-RPC
// reserved-range convention the teacher's MCP package uses for its own
// tool-specific codes.
const (
	ErrCodeRunNotFound      = -32010
	ErrCodeWrongRunType     = -32011
	ErrCodeMissingRankedSet = -32012
	ErrCodePublicationMiss  = -32013
	ErrCodeBackendHTTP      = -32014
	ErrCodeBackendDown      = -32015
	ErrCodeIntegrity        = -32016

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts a FusionError (or any other error) into an MCPError,
// so a tool handler never leaks a bare Go error message to the calling agent.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var fe *ferrors.FusionError
	if errors.As(err, &fe) {
		return mapFusionError(fe)
	}

	return &MCPError{Code: ErrCodeInternalError, Message: "internal error"}
}

func mapFusionError(fe *ferrors.FusionError) *MCPError {
	switch fe.Category {
	case ferrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: fe.Message}
	case ferrors.CategoryNotFound:
		return &MCPError{Code: errCodeForNotFound(fe.Code), Message: fe.Message}
	case ferrors.CategoryPrecondition:
		if fe.Code == ferrors.ErrCodeMissingZKey {
			return &MCPError{Code: ErrCodeMissingRankedSet, Message: fe.Message}
		}
		return &MCPError{Code: ErrCodeWrongRunType, Message: fe.Message}
	case ferrors.CategoryBackendHTTP:
		return &MCPError{Code: ErrCodeBackendHTTP, Message: fe.Message}
	case ferrors.CategoryBackendTransport:
		return &MCPError{Code: ErrCodeBackendDown, Message: fe.Message}
	case ferrors.CategoryIntegrity:
		return &MCPError{Code: ErrCodeIntegrity, Message: fe.Message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: fe.Message}
	}
}

func errCodeForNotFound(code string) int {
	if code == ferrors.ErrCodePublicationNotFound {
		return ErrCodePublicationMiss
	}
	return ErrCodeRunNotFound
}

// NewInvalidParamsError creates an error for invalid tool arguments.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}
