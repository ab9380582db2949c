// Package settings guarda los parámetros de trading ajustables en caliente
// en un fichero JSON y detecta ediciones externas con fsnotify.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/pulsesurfer/internal/adapters/storage"
	"github.com/alejandrodnm/pulsesurfer/internal/domain"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// FileStore implementa ports.SettingsProvider sobre un fichero JSON.
type FileStore struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	current  domain.Settings
	onChange func(domain.Settings)
	watching bool

	suppressSelf atomic.Bool
}

// NewFileStore carga path, o lo crea con defaults si no existe.
// Un fichero existente con settings inválidos es error.
func NewFileStore(path string, defaults domain.Settings) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("settings.NewFileStore: create dir: %w", err)
	}
	s := &FileStore{path: path, debounce: defaultDebounce}

	cfg, err := load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = defaults.Normalize()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("settings.NewFileStore: defaults: %w", err)
		}
		if err := write(path, cfg); err != nil {
			return nil, fmt.Errorf("settings.NewFileStore: write initial settings: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("settings.NewFileStore: %w", err)
	}
	s.current = cfg
	return s, nil
}

// SetDebounce cambia la espera entre un evento del fichero y la recarga (tests).
func (s *FileStore) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Path devuelve la ruta del fichero.
func (s *FileStore) Path() string {
	return s.path
}

// Current devuelve una copia de los settings vigentes.
func (s *FileStore) Current() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Normalize()
}

// Update valida, persiste y aplica next. Settings iguales a los vigentes no hacen nada.
func (s *FileStore) Update(_ context.Context, next domain.Settings) error {
	next = next.Normalize()
	if err := next.Validate(); err != nil {
		return err
	}
	if reflect.DeepEqual(s.Current(), next) {
		return nil
	}

	// la escritura propia dispara eventos del watcher que no deben recargar
	s.suppressSelf.Store(true)
	defer time.AfterFunc(s.debounce, func() { s.suppressSelf.Store(false) })

	if err := write(s.path, next); err != nil {
		s.suppressSelf.Store(false)
		return fmt.Errorf("settings.Update: %w", err)
	}
	s.apply(next)
	return nil
}

// Watch observa el directorio del fichero y recarga ante ediciones externas.
// onChange se invoca tras cada cambio efectivo, venga de Update o del disco.
func (s *FileStore) Watch(ctx context.Context, onChange func(domain.Settings)) error {
	s.mu.Lock()
	s.onChange = onChange
	if s.watching {
		s.mu.Unlock()
		return nil
	}
	s.watching = true
	s.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings.Watch: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("settings.Watch: watch dir: %w", err)
	}
	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *FileStore) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var timerMu sync.Mutex
	var timer *time.Timer
	trigger := func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(s.debounce, s.reloadFromDisk)
		timerMu.Unlock()
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(s.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if s.suppressSelf.Load() {
				continue
			}
			trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("settings: watcher error", "err", err)
		case <-ctx.Done():
			return
		}
	}
}

func (s *FileStore) reloadFromDisk() {
	cfg, err := load(s.path)
	if err != nil {
		slog.Warn("settings: reload failed, keeping current settings", "path", s.path, "err", err)
		return
	}
	if reflect.DeepEqual(s.Current(), cfg) {
		return
	}
	slog.Info("settings: reloaded from disk", "path", s.path)
	s.apply(cfg)
}

func (s *FileStore) apply(cfg domain.Settings) {
	s.mu.Lock()
	s.current = cfg
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil {
		cb(cfg.Normalize())
	}
}

func load(path string) (domain.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Settings{}, err
	}
	// partir de los defaults: claves ausentes en el fichero conservan su valor de fábrica
	cfg := domain.DefaultSettings()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("decode %q: %w", path, err)
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return domain.Settings{}, fmt.Errorf("%q: %w", path, err)
	}
	return cfg, nil
}

func write(path string, cfg domain.Settings) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return storage.WriteFileAtomic(path, data)
}
