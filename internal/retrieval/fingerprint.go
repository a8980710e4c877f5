package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gowebpki/jcs"
)

const manifestSchema = "brand-guardian.kb.v1"

// #region source-file

// sourceFile is a policy document discovered in the knowledge-base directory.
type sourceFile struct {
	Name   string `json:"name"`
	Path   string `json:"-"`
	Kind   string `json:"kind"` // pdf | text
	Digest string `json:"sha256"`
}

// scanSources lists supported documents in dir, sorted by name, with content digests.
func scanSources(dir string) ([]sourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base dir: %w", err)
	}
	var files []sourceFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind := ""
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pdf":
			kind = "pdf"
		case ".txt", ".md":
			kind = "text"
		default:
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(data)
		files = append(files, sourceFile{
			Name:   entry.Name(),
			Path:   path,
			Kind:   kind,
			Digest: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// #endregion source-file

// #region fingerprint

type manifest struct {
	Schema       string       `json:"schema"`
	ChunkSize    int          `json:"chunk_size"`
	ChunkOverlap int          `json:"chunk_overlap"`
	Documents    []sourceFile `json:"documents"`
}

// fingerprint digests the source manifest in RFC 8785 canonical form, so the same
// documents and chunking parameters always produce the same value.
func fingerprint(files []sourceFile, chunkSize, chunkOverlap int) (string, error) {
	raw, err := json.Marshal(manifest{
		Schema:       manifestSchema,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Documents:    files,
	})
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize manifest: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// #endregion fingerprint

// #region read-file
func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// #endregion read-file
