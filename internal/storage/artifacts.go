package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/faceswaplab/api/internal/client"
	"github.com/faceswaplab/api/internal/imaging"
)

// ArtifactStore persists a completed output image and resolves the public URL
// clients use to fetch it.
type ArtifactStore interface {
	// SaveOutput stores the image and returns the result path recorded on the
	// job (a local file path or an object key, depending on the backend).
	SaveOutput(ctx context.Context, referenceID string, image []byte, mime string) (string, error)
	// ResultURL turns a recorded result path into a resolvable URL.
	ResultURL(resultPath string) string
}

// LocalStore keeps outputs on local disk, served via the /static mount.
type LocalStore struct {
	layout  *Layout
	baseURL string
}

func NewLocalStore(layout *Layout, baseURL string) *LocalStore {
	return &LocalStore{layout: layout, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) SaveOutput(_ context.Context, referenceID string, image []byte, mime string) (string, error) {
	outPath := filepath.Join(s.layout.OutputsDir(), referenceID+imaging.ExtensionForMime(mime))
	if err := os.WriteFile(outPath, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write output image: %w", err)
	}
	return outPath, nil
}

func (s *LocalStore) ResultURL(resultPath string) string {
	return fmt.Sprintf("%s/static/outputs/%s", s.baseURL, filepath.Base(resultPath))
}

// R2Store uploads outputs to object storage instead of local disk. The result
// path recorded on the job is the object key.
type R2Store struct {
	client client.StorageClient
}

func NewR2Store(storageClient client.StorageClient) *R2Store {
	return &R2Store{client: storageClient}
}

func (s *R2Store) SaveOutput(ctx context.Context, referenceID string, image []byte, mime string) (string, error) {
	key := fmt.Sprintf("outputs/%s%s", referenceID, imaging.ExtensionForMime(mime))
	if _, err := s.client.Upload(ctx, key, bytes.NewReader(image), mime); err != nil {
		return "", fmt.Errorf("failed to upload output image: %w", err)
	}
	return key, nil
}

func (s *R2Store) ResultURL(resultPath string) string {
	return s.client.GetPublicURL(resultPath)
}
