// Package openapi embeds the service OpenAPI description for runtime
// distribution.
package openapi

import _ "embed"

// APIDocument contains the OpenAPI description served at /api/v1/openapi.json.
//
//go:embed openapi.json
var APIDocument []byte

// Document returns a defensive copy of the embedded OpenAPI JSON.
func Document() []byte {
	return append([]byte(nil), APIDocument...)
}
