package vectorindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/knowcode/knowcode/internal/errs"
	"github.com/knowcode/knowcode/internal/model"
)

// manifestFileName is the sidecar file written next to the sqlite-vec
// database, describing what configuration produced it.
const manifestFileName = "manifest.json"

// WriteManifest atomically overwrites the manifest sidecar at dir, per the
// "manifests are overwritten atomically after a successful rebuild"
// lifecycle invariant.
func WriteManifest(dir string, m model.IndexManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return &errs.KindError{Kind: errs.IOError, Err: err}
	}
	path := dir + "/" + manifestFileName
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &errs.KindError{Kind: errs.IOError, Subject: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &errs.KindError{Kind: errs.IOError, Subject: path, Err: err}
	}
	return nil
}

// ReadManifest loads the manifest sidecar at dir. Returns a KindError
// wrapping os.ErrNotExist if no manifest has ever been written there.
func ReadManifest(dir string) (model.IndexManifest, error) {
	path := dir + "/" + manifestFileName
	data, err := os.ReadFile(path)
	if err != nil {
		return model.IndexManifest{}, &errs.KindError{Kind: errs.IOError, Subject: path, Err: err}
	}
	var m model.IndexManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return model.IndexManifest{}, &errs.KindError{Kind: errs.SchemaMismatch, Subject: path, Err: err}
	}
	return m, nil
}

// Stale reports whether a loaded manifest disagrees with the current
// configuration and must trigger a full rebuild rather than a load, per
// the Index manifest invariant in the data model.
func Stale(m model.IndexManifest, embeddingModel string, dimensions int, provider string, sourceHash string) bool {
	return m.EmbeddingModel != embeddingModel ||
		m.Dimensions != dimensions ||
		m.Provider != provider ||
		m.SourceHash != sourceHash ||
		m.SchemaVersion > model.CurrentSchemaVersion
}

// HashSourceSet produces the manifest's content-hash of a source set from
// a sorted list of (path, content-hash) pairs, so a manifest can detect
// any change to the underlying file set without re-reading every file.
func HashSourceSet(pathHashes []string) string {
	h := sha256.New()
	for _, ph := range pathHashes {
		h.Write([]byte(ph))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
