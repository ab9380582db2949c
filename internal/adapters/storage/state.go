package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alejandrodnm/pulsesurfer/internal/domain"
)

// FileStateStore guarda el estado como un único documento JSON.
// La escritura es temp + fsync + rename: un crash deja el documento anterior o el nuevo,
// nunca uno a medias.
type FileStateStore struct {
	path string
}

// NewFileStateStore crea el store en path. El directorio se crea si no existe.
func NewFileStateStore(path string) (*FileStateStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage.NewFileStateStore: mkdir %q: %w", dir, err)
		}
	}
	return &FileStateStore{path: path}, nil
}

// Load devuelve el estado guardado, o (nil, nil) si no existe todavía.
func (s *FileStateStore) Load(_ context.Context) (*domain.PersistedState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.Load: read %q: %w", s.path, err)
	}
	var st domain.PersistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("storage.Load: decode %q: %w", s.path, err)
	}
	if st.Position == nil {
		return nil, fmt.Errorf("storage.Load: %q has no position", s.path)
	}
	if st.Position.Trades == nil {
		st.Position.Trades = []domain.Trade{}
	}
	return &st, nil
}

// Save escribe st de forma atómica.
func (s *FileStateStore) Save(ctx context.Context, st domain.PersistedState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("storage.Save: encode: %w", err)
	}
	if err := WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("storage.Save: %w", err)
	}
	return nil
}

// WriteFileAtomic escribe data en path vía temp + fsync + rename en el mismo directorio.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op tras el rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
