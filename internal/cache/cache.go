// Package cache stores a finished report next to a fingerprint of the inputs
// that produced it, so an unchanged tree can skip extraction.
package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
)

var magic = []byte("RQTC1")

// ErrStale is returned by Load when the cache exists but was written for
// different inputs.
var ErrStale = errors.New("cache is stale")

// Fingerprint hashes the size and modification time of every file (paths
// relative to root) together with extra settings that change the output.
// File order does not matter.
func Fingerprint(root string, files []string, extra ...string) (uint64, error) {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	h := xxh3.New()
	for _, s := range extra {
		writeField(h, s)
	}
	for _, f := range sorted {
		fi, err := os.Stat(filepath.Join(root, f))
		if err != nil {
			return 0, fmt.Errorf("fingerprint: %w", err)
		}
		writeField(h, f)
		writeField(h, strconv.FormatInt(fi.Size(), 10))
		writeField(h, strconv.FormatInt(fi.ModTime().UnixNano(), 10))
	}
	return h.Sum64(), nil
}

func writeField(w io.Writer, s string) {
	_, _ = io.WriteString(w, s)
	_, _ = w.Write([]byte{0})
}

// Load returns the cached report at path if it was stored with fp.
func Load(path string, fp uint64) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < len(magic)+8 || !bytes.Equal(data[:len(magic)], magic) {
		return nil, ErrStale
	}
	if binary.BigEndian.Uint64(data[len(magic):]) != fp {
		return nil, ErrStale
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cache decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data[len(magic)+8:], nil)
	if err != nil {
		return nil, fmt.Errorf("decoding cache: %w", err)
	}
	return out, nil
}

// Store writes report to path under fingerprint fp, replacing any previous
// cache atomically.
func Store(path string, fp uint64, report []byte) error {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("cache encoder: %w", err)
	}
	payload := enc.EncodeAll(report, nil)
	_ = enc.Close()

	buf := make([]byte, 0, len(magic)+8+len(payload))
	buf = append(buf, magic...)
	buf = binary.BigEndian.AppendUint64(buf, fp)
	buf = append(buf, payload...)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".reqtrace-cache-*")
	if err != nil {
		return fmt.Errorf("write cache: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write cache: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write cache: rename: %w", err)
	}
	return nil
}
