package roadnet

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Cache format version. Bump whenever the snapshot layout changes so stale
// files are rebuilt instead of mis-decoded.
const cacheVersion = 1

// ErrCacheStale is returned when a cache file exists but was built from a
// different source file or an older format version.
var ErrCacheStale = errors.New("roadnet: cache stale")

type snapshot struct {
	Version    int
	SourceHash string
	Nodes      []Node
	Edges      []Edge
}

// FileHash returns the hex SHA-256 of a file's contents. The hash keys the
// on-disk cache: a re-downloaded or edited extract invalidates it even when
// modification times lie.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("roadnet: hash source: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("roadnet: hash source: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteCache serializes the network to path using gob, recording the source
// hash for later validation. The write goes through a temp file so a crash
// never leaves a truncated cache behind.
func WriteCache(n *Network, path, sourceHash string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("roadnet: write cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".roadnet-*")
	if err != nil {
		return fmt.Errorf("roadnet: write cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	snap := snapshot{
		Version:    cacheVersion,
		SourceHash: sourceHash,
		Nodes:      n.nodesSnapshot(),
		Edges:      n.edgesSnapshot(),
	}
	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		tmp.Close()
		return fmt.Errorf("roadnet: encode cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("roadnet: write cache: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ReadCache loads a cached network, verifying format version and source
// hash. Returns ErrCacheStale when either check fails.
func ReadCache(path, sourceHash string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("roadnet: decode cache: %w", err)
	}
	if snap.Version != cacheVersion || snap.SourceHash != sourceHash {
		return nil, ErrCacheStale
	}
	return NewNetwork(snap.Nodes, snap.Edges), nil
}

// LoadPBFCached loads the network from a cache file next to the extract when
// valid, otherwise parses the PBF and refreshes the cache. A failed cache
// write is logged and otherwise ignored; the parsed network is still usable.
func LoadPBFCached(ctx context.Context, pbfPath, cacheDir string, lg *slog.Logger) (*Network, error) {
	hash, err := FileHash(pbfPath)
	if err != nil {
		return nil, err
	}
	cachePath := filepath.Join(cacheDir, filepath.Base(pbfPath)+".roadnet")

	if n, err := ReadCache(cachePath, hash); err == nil {
		lg.Info("road network loaded from cache",
			"path", cachePath, "nodes", n.NodeCount(), "edges", n.EdgeCount())
		return n, nil
	} else if !errors.Is(err, ErrCacheStale) && !os.IsNotExist(err) {
		lg.Warn("road network cache unreadable, rebuilding", "path", cachePath, "error", err)
	}

	n, err := LoadPBF(ctx, pbfPath)
	if err != nil {
		return nil, err
	}
	lg.Info("road network parsed",
		"path", pbfPath, "nodes", n.NodeCount(), "edges", n.EdgeCount())

	if err := WriteCache(n, cachePath, hash); err != nil {
		lg.Warn("road network cache write failed", "path", cachePath, "error", err)
	}
	return n, nil
}
