package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/encoding/json"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/common/validation"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
)

// FileConfig configures a FileStore.
type FileConfig struct {
	// Dir holds one file per key.
	Dir string
	// ErrorDir holds error records. Defaults to Dir.
	ErrorDir string
	// Compress writes bodies as zstd with a .zst suffix. Plain and
	// compressed files are both readable regardless of this setting.
	Compress bool
	Metrics  *metrics.Registry
}

// FileStore keeps each body in its own file, written atomically.
type FileStore struct {
	config FileConfig
	instrumented
}

// NewFileStore creates the directories and returns a FileStore.
func NewFileStore(config FileConfig) (*FileStore, error) {
	if err := validation.ValidateNotEmpty("cache", "dir", config.Dir); err != nil {
		return nil, err
	}
	if config.ErrorDir == "" {
		config.ErrorDir = config.Dir
	}
	for _, dir := range []string{config.Dir, config.ErrorDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
	}
	return &FileStore{config: config, instrumented: instrumented{name: "file", metrics: config.Metrics}}, nil
}

// Path returns the file a body for key is written to.
func (s *FileStore) Path(key string) string {
	p := filepath.Join(s.config.Dir, sanitize(key))
	if s.config.Compress {
		p += ".zst"
	}
	return p
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := s.read(key)
	s.lookup(err)
	return body, err
}

func (s *FileStore) read(key string) ([]byte, error) {
	base := filepath.Join(s.config.Dir, sanitize(key))

	f, err := os.Open(base + ".zst")
	if err == nil {
		defer f.Close()
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	body, err := os.ReadFile(base)
	if os.IsNotExist(err) {
		return nil, errors.ErrNotFound
	}
	return body, err
}

func (s *FileStore) Put(ctx context.Context, key string, body []byte) error {
	err := writeAtomic(s.Path(key), func(w io.Writer) error {
		if !s.config.Compress {
			_, err := w.Write(body)
			return err
		}
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := enc.Write(body); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	})
	s.wrote("body", err)
	return err
}

func (s *FileStore) PutError(ctx context.Context, key string, index int, cause error) error {
	data, err := json.MarshalIndent(NewErrorRecord(cause), "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.config.ErrorDir, sanitize(ErrorKey(index, key)))
	err = writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	s.wrote("error", err)
	return err
}

func (s *FileStore) Close() error { return nil }

// writeAtomic writes to a temporary file in the target directory and
// renames it into place, so readers never see a partial file.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
