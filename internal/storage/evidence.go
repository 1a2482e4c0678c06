package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// EvidenceStore writes violation frames to local disk. References returned
// are paths relative to Dir so rows stay valid if the root moves.
type EvidenceStore struct {
	Dir string
}

func NewEvidenceStore(dir string) (*EvidenceStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence dir: %w", err)
	}
	return &EvidenceStore{Dir: dir}, nil
}

func (e *EvidenceStore) Save(ctx context.Context, sessionID string, at time.Time, jpeg []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.jpg", at.UTC().Format("20060102T150405.000"), uuid.NewString()[:8])
	rel := filepath.Join(sessionID, name)
	full := filepath.Join(e.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, jpeg, 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

// Open returns the stored bytes for a reference produced by Save.
func (e *EvidenceStore) Open(ref string) ([]byte, error) {
	clean := filepath.Clean(ref)
	if filepath.IsAbs(clean) || clean == ".." || len(clean) >= 3 && clean[:3] == ".."+string(filepath.Separator) {
		return nil, fmt.Errorf("invalid evidence ref %q", ref)
	}
	return os.ReadFile(filepath.Join(e.Dir, clean))
}
