package errors

import (
	"github.com/fredcamaral/gomcp-sdk/protocol"
)

// JSON-RPC error codes used on the MCP surface. Standard codes for
// validation and internal failures, a custom range for domain errors.
const (
	rpcInvalidParams    = -32602
	rpcInternal         = -32603
	rpcNotFound         = -32001
	rpcSchemaResolution = -32002
	rpcCodeGeneration   = -32003
	rpcUnavailable      = -32004
)

// RPCCode maps a taxonomy code to its JSON-RPC error code.
func RPCCode(code Code) int {
	switch code {
	case CodeValidation, CodeUnsupportedVersion:
		return rpcInvalidParams
	case CodeResourceNotFound:
		return rpcNotFound
	case CodeSchemaResolution:
		return rpcSchemaResolution
	case CodeCodeGeneration:
		return rpcCodeGeneration
	case CodeCircuitOpen, CodeResourceExhausted, CodeTimeout:
		return rpcUnavailable
	default:
		return rpcInternal
	}
}

// ToJSONRPC converts a ServerError to a JSON-RPC error object with a
// sanitized data payload.
func (e *ServerError) ToJSONRPC() *protocol.JSONRPCError {
	data := map[string]interface{}{
		"code": string(e.Code),
	}
	if len(e.Details) > 0 {
		data["details"] = SanitizeMap(e.Details)
	}
	if len(e.Suggestions) > 0 {
		data["suggestions"] = e.Suggestions
	}
	return &protocol.JSONRPCError{
		Code:    RPCCode(e.Code),
		Message: e.Message,
		Data:    data,
	}
}
