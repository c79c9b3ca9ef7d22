package replay

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// fileEnvelope is the on-disk layout of a FileStore cache: one msgpack value,
// gzip-compressed as a whole.
type fileEnvelope struct {
	Header    *Header  `msgpack:"header"`
	Snapshots [][]byte `msgpack:"snapshots"`
}

// FileStore keeps the whole cache in memory and persists it as a single
// gzip-compressed msgpack envelope when the run finishes. Suited to runs
// whose cache fits in memory; use StreamStore otherwise.
//
// Recording truncates any previous cache at the same path: each new run
// overwrites the last one.
type FileStore struct {
	path      string
	header    *Header
	snapshots [][]byte
	recording bool
	next      int
	closed    bool
}

// NewFileStore creates a FileStore for recording a new run.
func NewFileStore(path string, header *Header) (*FileStore, error) {
	if header == nil {
		return nil, fmt.Errorf("file store %s: nil header", path)
	}
	return &FileStore{
		path:      path,
		header:    header,
		snapshots: make([][]byte, 0),
		recording: true,
	}, nil
}

// OpenFileStore opens an existing cache file for replay. The whole cache is
// loaded into memory up front, so a missing or corrupt file fails here rather
// than somewhere mid-replay.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading cache file %s: %w", path, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("reading cache file %s: %w", path, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("reading cache file %s: %w", path, err)
	}

	var env fileEnvelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding cache file %s: %w", path, err)
	}
	if env.Header == nil {
		return nil, fmt.Errorf("cache file %s: missing header", path)
	}
	if env.Header.Version != CacheFormatVersion {
		return nil, fmt.Errorf("cache file %s: format version %d, want %d",
			path, env.Header.Version, CacheFormatVersion)
	}
	return &FileStore{
		path:      path,
		header:    env.Header,
		snapshots: env.Snapshots,
	}, nil
}

// Header returns the cache metadata.
func (fs *FileStore) Header() *Header { return fs.header }

// Append compresses a snapshot and adds it to the in-memory cache.
func (fs *FileStore) Append(snapshot []byte) error {
	if !fs.recording {
		return fmt.Errorf("file store %s: opened for replay", fs.path)
	}
	if fs.closed {
		return fmt.Errorf("file store %s: already closed", fs.path)
	}
	data, err := fs.header.Compression.Compress(snapshot)
	if err != nil {
		return err
	}
	fs.snapshots = append(fs.snapshots, data)
	return nil
}

// Next returns the next recorded snapshot, or io.EOF when the cache is
// exhausted.
func (fs *FileStore) Next() ([]byte, error) {
	if fs.recording {
		return nil, fmt.Errorf("file store %s: opened for recording", fs.path)
	}
	if fs.next >= len(fs.snapshots) {
		return nil, io.EOF
	}
	data, err := fs.header.Compression.Decompress(fs.snapshots[fs.next])
	if err != nil {
		return nil, err
	}
	fs.next++
	return data, nil
}

// Close finalizes the store. For a recording store this writes the cache
// file, overwriting whatever was at the path before.
func (fs *FileStore) Close() error {
	if fs.closed {
		return nil
	}
	fs.closed = true
	if !fs.recording {
		return nil
	}

	fs.header.Steps = len(fs.snapshots)
	raw, err := msgpack.Marshal(&fileEnvelope{Header: fs.header, Snapshots: fs.snapshots})
	if err != nil {
		return fmt.Errorf("encoding cache envelope: %w", err)
	}

	f, err := os.Create(fs.path)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("writing cache file %s: %w", fs.path, err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("writing cache file %s: %w", fs.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing cache file %s: %w", fs.path, err)
	}
	logrus.Infof("Wrote cache file to %s (%d steps)", fs.path, fs.header.Steps)
	return nil
}
