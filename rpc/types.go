// Package rpc exposes chain state via a JSON-RPC 2.0 HTTP endpoint.
package rpc

import (
	"encoding/json"

	"github.com/ghostnet-labs/ghostnet/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object. Data carries the failure kind
// for domain errors.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData classifies a domain error (see core.ErrorKind).
type ErrorData struct {
	Kind string `json:"kind"`
}

// Standard JSON-RPC error codes plus server-defined ones.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeNotFound       = -32001
	CodeRejected       = -32002
)

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

// domainErr maps err to a response code by its kind and attaches the kind.
func domainErr(id any, err error) Response {
	kind := core.ErrorKind(err)
	code := CodeRejected
	switch kind {
	case "not_found":
		code = CodeNotFound
	case "validation":
		code = CodeInvalidParams
	case "internal":
		code = CodeInternalError
	}
	resp := errResponse(id, code, err.Error())
	resp.Error.Data = &ErrorData{Kind: kind}
	return resp
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
