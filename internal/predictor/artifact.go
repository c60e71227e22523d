package predictor

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/ml"
)

const artifactVersion = 1

// Artifact kinds.
const (
	kindChurn = "churn"
	kindCLV   = "clv"
)

// ArtifactMetadata describes a stored model file.
type ArtifactMetadata struct {
	Version   int       `json:"version"`
	Kind      string    `json:"kind"`
	ModelType string    `json:"model_type"`
	TrainedAt time.Time `json:"trained_at"`
	SavedAt   time.Time `json:"saved_at"`
	Checksum  string    `json:"checksum"`
	SizeBytes int64     `json:"size_bytes"`
}

// bundle is the fitted state persisted for a predictor.
type bundle struct {
	Classifier     ml.Classifier
	Regressor      ml.Regressor
	Scaler         *ml.StandardScaler
	FeatureColumns []string
	ModelType      ModelType
}

// storedFile is the on-disk format: metadata plus the snappy-compressed gob
// bundle.
type storedFile struct {
	Metadata       ArtifactMetadata
	CompressedData []byte
}

// writeArtifact encodes b and replaces path atomically, returning the
// compressed payload size.
func writeArtifact(path string, meta ArtifactMetadata, b bundle) (int64, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&b); err != nil {
		return 0, fmt.Errorf("encode model: %w", err)
	}
	raw := buf.Bytes()
	hash := sha256.Sum256(raw)
	compressed := snappy.Encode(nil, raw)

	meta.Version = artifactVersion
	meta.Checksum = hex.EncodeToString(hash[:])
	meta.SizeBytes = int64(len(compressed))
	meta.SavedAt = time.Now().UTC()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return 0, fmt.Errorf("create model directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create model file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := gob.NewEncoder(tmp).Encode(storedFile{Metadata: meta, CompressedData: compressed}); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write model file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("sync model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("replace model file: %w", err)
	}
	return meta.SizeBytes, nil
}

// readArtifact loads and verifies a model file written by writeArtifact.
func readArtifact(path, wantKind string) (ArtifactMetadata, bundle, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return ArtifactMetadata{}, bundle{}, fmt.Errorf("open model file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return ArtifactMetadata{}, bundle{}, fmt.Errorf("%w: read %s: %v", apperrors.ErrArtifact, path, err)
	}
	meta := sf.Metadata
	if meta.Version != artifactVersion {
		return meta, bundle{}, fmt.Errorf("%w: %s has version %d, expected %d", apperrors.ErrArtifact, path, meta.Version, artifactVersion)
	}
	if meta.Kind != wantKind {
		return meta, bundle{}, fmt.Errorf("%w: %s holds a %q model, expected %q", apperrors.ErrArtifact, path, meta.Kind, wantKind)
	}

	raw, err := snappy.Decode(nil, sf.CompressedData)
	if err != nil {
		return meta, bundle{}, fmt.Errorf("%w: decompress %s: %v", apperrors.ErrArtifact, path, err)
	}
	hash := sha256.Sum256(raw)
	if checksum := hex.EncodeToString(hash[:]); checksum != meta.Checksum {
		return meta, bundle{}, fmt.Errorf("%w: checksum mismatch: expected %s, got %s", apperrors.ErrArtifact, meta.Checksum, checksum)
	}

	var b bundle
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&b); err != nil {
		return meta, bundle{}, fmt.Errorf("%w: decode model: %v", apperrors.ErrArtifact, err)
	}
	return meta, b, nil
}

// ReadArtifactMetadata returns the metadata of a model file without decoding
// the model.
func ReadArtifactMetadata(path string) (ArtifactMetadata, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return ArtifactMetadata{}, fmt.Errorf("open model file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return ArtifactMetadata{}, fmt.Errorf("%w: read %s: %v", apperrors.ErrArtifact, path, err)
	}
	return sf.Metadata, nil
}
