package sync

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/tonimelisma/sharepoint-sync/pkg/quickxorhash"
)

// localQuickXorHash returns the base64 QuickXorHash of a local file, the
// same encoding the Graph API reports in file.hashes.quickXorHash.
func localQuickXorHash(fsys afero.Fs, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := quickxorhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
