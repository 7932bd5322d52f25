package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/wipsher/wipsher/internal/download"
	"go.uber.org/zap"
)

var (
	ErrModelMissing = errors.New("model is not downloaded")
	ErrNoModels     = errors.New("no models downloaded; run `wipsher download` first")
)

// DownloadFunc fetches model into model.Path, reporting 0-100 progress.
type DownloadFunc func(ctx context.Context, model ResolvedModel, onProgress func(percent int)) error

type Inventory struct {
	Downloaded []string
	Available  []string
}

// Manager owns the model directory. Resolutions are cached for the lifetime
// of the Manager so a batch of transcriptions resolves each model once.
type Manager struct {
	Dir          string
	AutoDownload bool
	NoProgress   bool
	Download     DownloadFunc
	Logger       *zap.Logger

	mu    sync.Mutex
	cache map[string]ResolvedModel
}

func (m *Manager) IsDownloaded(name string) bool {
	model, ok := LookupModel(name)
	if !ok {
		return false
	}

	resolved, err := ResolveModel(model.Name, m.Dir)
	if err != nil {
		return false
	}
	downloaded := !resolved.NeedsDownload
	m.log().Debug("model presence checked", zap.String("model", model.Name), zap.Bool("downloaded", downloaded))
	return downloaded
}

// Inventory splits the registry into downloaded and available models,
// both in registry order.
func (m *Manager) Inventory() Inventory {
	var inv Inventory
	for _, name := range ModelNames() {
		if m.IsDownloaded(name) {
			inv.Downloaded = append(inv.Downloaded, name)
		} else {
			inv.Available = append(inv.Available, name)
		}
	}
	return inv
}

// Select turns a model reference into a concrete one. "auto" prefers the
// recommended model when it is installed, then the smallest installed
// model, and finally the recommended one (to be downloaded).
func (m *Manager) Select(ref, recommended string) string {
	ref = strings.TrimSpace(ref)
	if ref != "" && !strings.EqualFold(ref, AutoModel) {
		return ref
	}

	inv := m.Inventory()
	for _, name := range inv.Downloaded {
		if name == recommended {
			return name
		}
	}
	if len(inv.Downloaded) > 0 {
		return inv.Downloaded[0]
	}
	return recommended
}

// Ensure resolves ref and downloads it when missing and AutoDownload is set.
func (m *Manager) Ensure(ctx context.Context, ref string, onProgress func(percent int)) (ResolvedModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.cache[ref]; ok {
		if _, err := os.Stat(cached.Path); err == nil {
			m.log().Debug("using cached model resolution", zap.String("model", cached.Name))
			return cached, nil
		}
		delete(m.cache, ref)
	}

	if strings.TrimSpace(m.Dir) != "" {
		if err := os.MkdirAll(m.Dir, 0o755); err != nil {
			return ResolvedModel{}, fmt.Errorf("create model directory %s: %w", m.Dir, err)
		}
	}

	resolved, err := ResolveModel(ref, m.Dir)
	if err != nil {
		return ResolvedModel{}, err
	}

	if resolved.NeedsDownload {
		if !m.AutoDownload {
			return ResolvedModel{}, fmt.Errorf("%w: %q is missing at %s; run `wipsher download %s` or use --auto-download=true", ErrModelMissing, resolved.Name, resolved.Path, resolved.Name)
		}

		m.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
		if err := m.downloadFn()(ctx, resolved, onProgress); err != nil {
			return ResolvedModel{}, fmt.Errorf("download model %q: %w", resolved.Name, err)
		}
		resolved.NeedsDownload = false
		m.log().Info("model downloaded", zap.String("model", resolved.Name))
	}

	if m.cache == nil {
		m.cache = make(map[string]ResolvedModel)
	}
	m.cache[ref] = resolved
	return resolved, nil
}

// Fetch downloads (or re-downloads after a failed checksum) a named model
// regardless of AutoDownload. It reports whether a download happened.
func (m *Manager) Fetch(ctx context.Context, name string, onProgress func(percent int)) (ResolvedModel, bool, error) {
	resolved, err := ResolveModel(name, m.Dir)
	if err != nil {
		return ResolvedModel{}, false, err
	}
	if resolved.IsCustomPath {
		return ResolvedModel{}, false, fmt.Errorf("download expects a named model; got custom path %s", resolved.Path)
	}

	if !resolved.NeedsDownload && resolved.SHA256 != "" {
		if err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256); err != nil {
			m.log().Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Name), zap.Error(err))
			resolved.NeedsDownload = true
		}
	}

	if !resolved.NeedsDownload {
		m.log().Info("model already present", zap.String("model", resolved.Name), zap.String("path", resolved.Path))
		return resolved, false, nil
	}

	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return ResolvedModel{}, false, fmt.Errorf("create model directory %s: %w", m.Dir, err)
	}

	m.log().Info("downloading model", zap.String("model", resolved.Name), zap.String("path", resolved.Path))
	if err := m.downloadFn()(ctx, resolved, onProgress); err != nil {
		return ResolvedModel{}, false, fmt.Errorf("download model %s: %w", resolved.Name, err)
	}
	resolved.NeedsDownload = false

	m.mu.Lock()
	delete(m.cache, name)
	m.mu.Unlock()

	return resolved, true, nil
}

func (m *Manager) downloadFn() DownloadFunc {
	if m.Download != nil {
		return m.Download
	}
	return func(ctx context.Context, model ResolvedModel, onProgress func(int)) error {
		return download.DownloadFile(ctx, download.Options{
			URL:            model.URL,
			Destination:    model.Path,
			ExpectedSHA256: model.SHA256,
			NoProgress:     m.NoProgress,
			OnProgress:     onProgress,
			Logger:         m.log(),
		})
	}
}

func (m *Manager) log() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}
