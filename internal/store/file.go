package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/park285/cheese-elo-bot/internal/domain"
	"go.uber.org/zap"
)

// FileNames names the three line-oriented files of a FileStore.
type FileNames struct {
	Ratings string
	Pending string
	Done    string
}

// DefaultFileNames are the names used by the original bot.
var DefaultFileNames = FileNames{Ratings: "elo.txt", Pending: "progress.txt", Done: "done.txt"}

// FileStore keeps the ladder in three text files under one directory.
// Save stages all three files before renaming any of them into place, so a
// failed write never leaves a half-written file behind.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	names  FileNames
	logger *zap.Logger
}

func NewFileStore(dir string, names FileNames, logger *zap.Logger) *FileStore {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if names.Ratings == "" {
		names.Ratings = DefaultFileNames.Ratings
	}
	if names.Pending == "" {
		names.Pending = DefaultFileNames.Pending
	}
	if names.Done == "" {
		names.Done = DefaultFileNames.Done
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, names: names, logger: logger}
}

func (s *FileStore) Load(_ context.Context) (*domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.NewState()
	var err error
	if err = s.read(s.names.Ratings, func(r io.Reader) error {
		st.Ratings, err = ReadRatings(r)
		return err
	}); err != nil {
		return nil, err
	}
	if err = s.read(s.names.Pending, func(r io.Reader) error {
		st.Pending, err = ReadPending(r)
		return err
	}); err != nil {
		return nil, err
	}
	if err = s.read(s.names.Done, func(r io.Reader) error {
		st.Done, err = ReadDone(r)
		return err
	}); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *FileStore) read(name string, fn func(io.Reader) error) error {
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("store_file_missing", zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) Save(_ context.Context, st *domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	type staged struct{ tmp, final string }
	var files []staged
	cleanup := func() {
		for _, f := range files {
			_ = os.Remove(f.tmp)
		}
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{s.names.Done, func(w io.Writer) error { return WriteDone(w, st.Done) }},
		{s.names.Ratings, func(w io.Writer) error { return WriteRatings(w, st.Ratings) }},
		{s.names.Pending, func(w io.Writer) error { return WritePending(w, st.Pending) }},
	}
	for _, wr := range writers {
		tmp, err := s.stage(wr.name, wr.write)
		if err != nil {
			cleanup()
			return err
		}
		files = append(files, staged{tmp: tmp, final: filepath.Join(s.dir, wr.name)})
	}

	for i, f := range files {
		if err := os.Rename(f.tmp, f.final); err != nil {
			// earlier renames are already in place; drop the remaining temps
			for _, rest := range files[i:] {
				_ = os.Remove(rest.tmp)
			}
			return fmt.Errorf("replace %s: %w", f.final, err)
		}
	}
	return nil
}

// stage writes a complete temp file next to name and returns its path.
func (s *FileStore) stage(name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	tmp := f.Name()
	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	// CreateTemp uses 0600; keep the mode a plain file write would get
	if err := f.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := write(f); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	return tmp, nil
}

func (s *FileStore) Close() error { return nil }
