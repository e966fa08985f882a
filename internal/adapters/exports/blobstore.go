package exports

import (
	"bytes"
	"context"
	"io"
	"strings"

	"fragmentcore/internal/blob"
)

// BlobObjectStore adapts a blob.Store to the ObjectStore interface. Artifact
// IDs map to blob keys under an optional key prefix, so every configured blob
// driver (filesystem, S3, memory) can hold export bundles.
type BlobObjectStore struct {
	store  blob.Store
	prefix string
}

var _ ObjectStore = (*BlobObjectStore)(nil)

// NewBlobObjectStore wraps a blob store. The prefix namespaces export objects
// within a shared bucket; pass "" to store artifacts at the root.
func NewBlobObjectStore(store blob.Store, prefix string) *BlobObjectStore {
	return &BlobObjectStore{store: store, prefix: strings.Trim(prefix, "/")}
}

func (s *BlobObjectStore) key(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + "/" + id
}

func (s *BlobObjectStore) id(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

// Put stores a new immutable object. The underlying blob store enforces
// create-only semantics, so duplicate keys fail.
func (s *BlobObjectStore) Put(ctx context.Context, key string, payload []byte, contentType string, metadata map[string]any) (ExportArtifact, error) {
	info, err := s.store.Put(ctx, s.key(key), bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata:    stringMetadata(metadata),
	})
	if err != nil {
		return ExportArtifact{}, err
	}
	return s.artifactFor(ctx, key, info, metadata), nil
}

// Get returns the artifact metadata and full payload bytes.
func (s *BlobObjectStore) Get(ctx context.Context, key string) (ExportArtifact, []byte, error) {
	info, rc, err := s.store.Get(ctx, s.key(key))
	if err != nil {
		return ExportArtifact{}, nil, err
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return ExportArtifact{}, nil, err
	}
	return s.artifactFor(ctx, key, info, anyMetadata(info.Metadata)), payload, nil
}

// Delete removes the object; returns true if it existed.
func (s *BlobObjectStore) Delete(ctx context.Context, key string) (bool, error) {
	return s.store.Delete(ctx, s.key(key))
}

// List returns artifacts whose IDs start with the provided prefix.
func (s *BlobObjectStore) List(ctx context.Context, prefix string) ([]ExportArtifact, error) {
	infos, err := s.store.List(ctx, s.key(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]ExportArtifact, 0, len(infos))
	for _, info := range infos {
		out = append(out, ExportArtifact{
			ID:          s.id(info.Key),
			ContentType: info.ContentType,
			SizeBytes:   info.Size,
			URL:         info.URL,
			Metadata:    anyMetadata(info.Metadata),
			CreatedAt:   info.LastModified,
		})
	}
	return out, nil
}

// artifactFor builds an ExportArtifact from blob info, preferring a signed
// URL when the driver can mint one.
func (s *BlobObjectStore) artifactFor(ctx context.Context, id string, info blob.Info, metadata map[string]any) ExportArtifact {
	url := info.URL
	if signed, err := s.store.PresignURL(ctx, info.Key, blob.SignedURLOptions{Method: "GET"}); err == nil && signed != "" {
		url = signed
	}
	artifact := ExportArtifact{
		ID:          id,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		URL:         url,
		CreatedAt:   info.LastModified,
	}
	if len(metadata) > 0 {
		artifact.Metadata = cloneMap(metadata)
	}
	return artifact
}

func stringMetadata(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = formatValue(v)
	}
	return out
}

func anyMetadata(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
