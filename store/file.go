package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const fileMode fs.FileMode = 0o600

type fileDocument struct {
	AccessToken  string `yaml:"accessToken,omitempty"`
	RefreshToken string `yaml:"refreshToken,omitempty"`
}

func (d *fileDocument) get(role Role) (string, bool) {
	switch role {
	case RoleAccess:
		return d.AccessToken, d.AccessToken != ""
	case RoleRefresh:
		return d.RefreshToken, d.RefreshToken != ""
	}
	return "", false
}

func (d *fileDocument) set(role Role, value string) {
	switch role {
	case RoleAccess:
		d.AccessToken = value
	case RoleRefresh:
		d.RefreshToken = value
	}
}

// File is a [Store] persisting both credentials to a single YAML document.
//
// Writes go to a temporary file in the same directory which is then renamed over the
// target, so a crash never leaves a half-written document. The file is created with
// mode 0600. File serializes access within one process only.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a store backed by the YAML document at path. The file and its parent
// directory are created lazily on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing document path.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(ctx context.Context, role Role) (string, bool, error) {
	if err := checkRole(role); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return "", false, unavailable("get", role, err)
	}
	v, ok := doc.get(role)
	return v, ok, nil
}

func (f *File) Set(ctx context.Context, role Role, value string) error {
	if err := checkRole(role); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return unavailable("set", role, err)
	}
	doc.set(role, value)
	if err := f.write(doc); err != nil {
		return unavailable("set", role, err)
	}
	return nil
}

func (f *File) Clear(ctx context.Context, role Role) error {
	if err := checkRole(role); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return unavailable("clear", role, err)
	}
	if _, ok := doc.get(role); !ok {
		return nil
	}
	doc.set(role, "")
	if err := f.write(doc); err != nil {
		return unavailable("clear", role, err)
	}
	return nil
}

func (f *File) ClearAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return unavailable("clear all", "", err)
	}
	return nil
}

func (f *File) read() (*fileDocument, error) {
	doc := &fileDocument{}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *File) write(doc *fileDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}
