package cache

import (
	"crypto/sha1" // #nosec G505 content addressing only
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const assetDir = "assets"

func assetHash(data []byte) string {
	sum := sha1.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:])
}

func (c *Cache) assetPath(hash string) string {
	return filepath.Join(c.dir, assetDir, hash[:2], hash)
}

// writeAsset stores data under its hash. Existing files are left alone, new
// ones are written to a temp file and renamed into place.
func (c *Cache) writeAsset(data []byte) (string, error) {
	hash := assetHash(data)
	path := c.assetPath(hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create asset folder: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), hash+".tmp*")
	if err != nil {
		return "", fmt.Errorf("create asset temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("sync asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename asset: %w", err)
	}
	return hash, nil
}

func (c *Cache) readAsset(hash string) ([]byte, error) {
	if len(hash) < 2 {
		return nil, fmt.Errorf("invalid asset hash %q", hash)
	}
	// #nosec G304
	return os.ReadFile(c.assetPath(hash))
}
