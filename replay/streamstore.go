package replay

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// StreamStore writes each snapshot to the cache file as it is produced and
// reads them back one at a time, so the cache never has to fit in memory.
//
// The file is a sequence of chunks, each preceded by its length as 8 bytes
// little-endian. The first chunk is the msgpack-encoded Header; a zero-length
// chunk marks the end of the recording. Per-snapshot compression (from the
// header) keeps the file small without giving up step-by-step reading.
type StreamStore struct {
	path      string
	header    *Header
	recording bool
	file      *os.File
	w         *bufio.Writer
	r         *bufio.Reader
	// size is the cache file size at open time; no chunk can legitimately
	// claim to be longer than the file holding it.
	size   int64
	closed bool
}

// NewStreamStore creates a StreamStore recording to path. An existing file at
// the path is from a previous run and is deleted first.
func NewStreamStore(path string, header *Header) (*StreamStore, error) {
	if header == nil {
		return nil, fmt.Errorf("stream store %s: nil header", path)
	}
	if _, err := os.Stat(path); err == nil {
		logrus.Warnf("StreamStore: cache file %s already exists. Deleting it.", path)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing previous cache file: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating cache file: %w", err)
	}
	st := &StreamStore{
		path:      path,
		header:    header,
		recording: true,
		file:      f,
		w:         bufio.NewWriter(f),
	}
	raw, err := msgpack.Marshal(header)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("encoding cache header: %w", err)
	}
	if err := st.writeChunk(raw); err != nil {
		f.Close()
		return nil, err
	}
	return st, nil
}

// OpenStreamStore opens an existing chunked cache file for replay.
func OpenStreamStore(path string) (*StreamStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening cache file: %w", err)
	}
	st := &StreamStore{
		path: path,
		file: f,
		r:    bufio.NewReader(f),
		size: fi.Size(),
	}
	raw, err := st.readChunk()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading cache header from %s: %w", path, err)
	}
	var h Header
	if err := msgpack.Unmarshal(raw, &h); err != nil {
		f.Close()
		return nil, fmt.Errorf("decoding cache header from %s: %w", path, err)
	}
	if h.Version != CacheFormatVersion {
		f.Close()
		return nil, fmt.Errorf("cache file %s: format version %d, want %d",
			path, h.Version, CacheFormatVersion)
	}
	st.header = &h
	return st, nil
}

// Header returns the cache metadata.
func (st *StreamStore) Header() *Header { return st.header }

// Append compresses a snapshot and writes it to the stream.
func (st *StreamStore) Append(snapshot []byte) error {
	if !st.recording {
		return fmt.Errorf("stream store %s: opened for replay", st.path)
	}
	if st.closed {
		return fmt.Errorf("stream store %s: already closed", st.path)
	}
	// A zero-length chunk is the end marker; an empty snapshot would
	// truncate the cache at this point for readers.
	if len(snapshot) == 0 {
		return fmt.Errorf("stream store %s: empty snapshot", st.path)
	}
	data, err := st.header.Compression.Compress(snapshot)
	if err != nil {
		return err
	}
	return st.writeChunk(data)
}

// Next reads the next snapshot chunk, or io.EOF at the end marker.
func (st *StreamStore) Next() ([]byte, error) {
	if st.recording {
		return nil, fmt.Errorf("stream store %s: opened for recording", st.path)
	}
	data, err := st.readChunk()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache chunk from %s: %w", st.path, err)
	}
	return st.header.Compression.Decompress(data)
}

// Close finalizes the stream. A recording store ends the file with a
// zero-length chunk so the end of the cache stays detectable, then flushes
// and closes it.
func (st *StreamStore) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	if st.recording {
		if err := st.writeChunk(nil); err != nil {
			st.file.Close()
			return err
		}
		if err := st.w.Flush(); err != nil {
			st.file.Close()
			return fmt.Errorf("flushing cache file %s: %w", st.path, err)
		}
		logrus.Infof("Wrote cache file to %s", st.path)
	}
	if err := st.file.Close(); err != nil {
		return fmt.Errorf("closing cache file %s: %w", st.path, err)
	}
	return nil
}

// writeChunk writes the chunk length followed by the chunk itself. A nil
// chunk writes the zero-length end marker.
func (st *StreamStore) writeChunk(data []byte) error {
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(data)))
	if _, err := st.w.Write(size[:]); err != nil {
		return fmt.Errorf("writing cache chunk to %s: %w", st.path, err)
	}
	if len(data) > 0 {
		if _, err := st.w.Write(data); err != nil {
			return fmt.Errorf("writing cache chunk to %s: %w", st.path, err)
		}
	}
	return nil
}

// readChunk reads one length-prefixed chunk. The zero-length end marker and a
// truncated length prefix both surface as io.EOF.
func (st *StreamStore) readChunk() ([]byte, error) {
	var size [8]byte
	if _, err := io.ReadFull(st.r, size[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	n := binary.LittleEndian.Uint64(size[:])
	if n == 0 {
		return nil, io.EOF
	}
	if n > uint64(st.size) {
		return nil, fmt.Errorf("corrupt chunk length %d (cache file is %d bytes)", n, st.size)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(st.r, data); err != nil {
		return nil, fmt.Errorf("truncated chunk: %w", err)
	}
	return data, nil
}
