package filing

import (
	"context"
	"fmt"
)

// Source is the contract of the external parsing dependency: convert a
// filing identifier or a raw payload into a structured document. The
// dependency's internals (retrieval, format parsing, field extraction) are
// outside this repository.
type Source interface {
	ByID(ctx context.Context, id int64) (*Document, error)
	FromBytes(ctx context.Context, data []byte) (*Document, error)
}

// StaticSource serves documents from a fixed table. It backs registration
// health checks and tests, where deterministic filings are required.
type StaticSource struct {
	Documents map[int64]*Document
	Err       error
}

// ByID returns the configured document for the identifier.
func (s *StaticSource) ByID(ctx context.Context, id int64) (*Document, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	doc, ok := s.Documents[id]
	if !ok {
		return nil, fmt.Errorf("filing: no filing with id %d", id)
	}
	return doc, nil
}

// FromBytes decodes a structured payload directly.
func (s *StaticSource) FromBytes(ctx context.Context, data []byte) (*Document, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return DecodeDocument(data)
}
