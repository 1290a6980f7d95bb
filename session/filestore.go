package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/inkspine/bookstore/users"
)

const storeFileName = "session.json"

// FileStore persists the credential pair as a single JSON document in the
// data folder. Writing one document via rename keeps the pair atomic: readers
// see the old pair or the new pair, never half of each.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dataFolder string) (*FileStore, error) {
	if err := os.MkdirAll(dataFolder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] create data folder")
	}
	return &FileStore{path: filepath.Join(dataFolder, storeFileName)}, nil
}

func (fs *FileStore) Read() (*Credentials, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileStore.Read] read file")
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		// A corrupt or truncated file reads as absent; the next Write
		// replaces it.
		return nil, nil
	}
	if creds.Token == "" || creds.User == nil {
		return nil, nil
	}
	return &creds, nil
}

func (fs *FileStore) Write(token string, user *users.User) error {
	if token == "" || user == nil {
		return errors.New("[FileStore.Write] token and user must both be present")
	}

	data, err := json.Marshal(Credentials{Token: token, User: user})
	if err != nil {
		return errors.Wrap(err, "[FileStore.Write] marshal")
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.Write] write temp file")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "[FileStore.Write] rename")
	}
	return nil
}

func (fs *FileStore) Clear() {
	_ = os.Remove(fs.path)
}
