package sessions

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store keeps credential files and generated archives on disk. Files are
// addressed by generated identifiers, never by user-supplied names.
type Store struct {
	SessionsDir string
	ArchiveDir  string
}

func NewStore(sessionsDir, archiveDir string) (*Store, error) {
	for _, dir := range []string{sessionsDir, archiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("создание каталога %s: %w", dir, err)
		}
	}
	return &Store{SessionsDir: sessionsDir, ArchiveDir: archiveDir}, nil
}

// Save copies the uploaded credential into the store under a fresh
// uuid-based reference.
func (s *Store) Save(r io.Reader) (string, error) {
	ref := uuid.NewString() + ".session"
	f, err := os.Create(s.SessionPath(ref))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(s.SessionPath(ref))
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(s.SessionPath(ref))
		return "", err
	}
	return ref, nil
}

func (s *Store) SessionPath(ref string) string {
	return filepath.Join(s.SessionsDir, filepath.Base(ref))
}

func (s *Store) Remove(ref string) error {
	return os.Remove(s.SessionPath(ref))
}

func (s *Store) ArchivePath(unitID uint) string {
	return filepath.Join(s.ArchiveDir, fmt.Sprintf("tdata_%d.zip", unitID))
}

// BuildArchive packs the credential into a zip bundle for the unit. The
// archive is cached by unit id: an existing file is returned as is, so
// repeat downloads reuse the first build.
func (s *Store) BuildArchive(ref string, unitID uint) (string, error) {
	zipPath := s.ArchivePath(unitID)
	if _, err := os.Stat(zipPath); err == nil {
		return zipPath, nil
	}

	tmp := zipPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}

	zw := zip.NewWriter(f)
	if err := s.addToArchive(zw, ref); err != nil {
		zw.Close()
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}

	// Rename keeps half-written archives invisible to concurrent readers.
	if err := os.Rename(tmp, zipPath); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return zipPath, nil
}

func (s *Store) addToArchive(zw *zip.Writer, ref string) error {
	src, err := os.Open(s.SessionPath(ref))
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(filepath.Base(ref))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
