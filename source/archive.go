package source

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var archiveMagic = [4]byte{'D', 'R', 'A', 0}

// ErrArchiveFormat is returned for data that is not a resource archive.
var ErrArchiveFormat = errors.New("source: corrupted or not a resource archive")

const indexSizeLength = 8

type archiveEntry struct {
	Name   string
	Offset int64
	Size   int64
	Stored int64
	// Raw is set for entries lz4 could not shrink.
	Raw bool
}

// maxEntrySize bounds the stored and decoded size of one entry.
const maxEntrySize = 1 << 30

func (e archiveEntry) valid() bool {
	if e.Offset < 0 || e.Stored < 0 || e.Size < 0 || e.Stored > maxEntrySize || e.Size > maxEntrySize {
		return false
	}
	return !e.Raw || e.Stored == e.Size
}

// Archive is a read-only Source over a resource archive: a magic number,
// the little-endian length of a gob index, the index, then one lz4 block
// per entry. Archive is safe for concurrent use.
type Archive struct {
	r     io.ReaderAt
	base  int64
	index map[string]archiveEntry
	names []string

	closer io.Closer
	once   sync.Once
}

// OpenArchive reads the index of the archive held by r.
func OpenArchive(r io.ReaderAt) (*Archive, error) {
	var head [len(archiveMagic) + indexSizeLength]byte
	if _, err := r.ReadAt(head[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrArchiveFormat
		}
		return nil, fmt.Errorf("source: read archive header: %w", err)
	}
	if !bytes.Equal(head[:len(archiveMagic)], archiveMagic[:]) {
		return nil, ErrArchiveFormat
	}
	indexSize := int64(binary.LittleEndian.Uint64(head[len(archiveMagic):]))
	if indexSize <= 0 || indexSize > 1<<30 {
		return nil, ErrArchiveFormat
	}
	raw := make([]byte, indexSize)
	if _, err := r.ReadAt(raw, int64(len(head))); err != nil {
		return nil, fmt.Errorf("%w: index: %v", ErrArchiveFormat, err)
	}
	var entries []archiveEntry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: index: %v", ErrArchiveFormat, err)
	}

	a := &Archive{
		r:     r,
		base:  int64(len(head)) + indexSize,
		index: make(map[string]archiveEntry, len(entries)),
	}
	for _, e := range entries {
		if !e.valid() {
			return nil, fmt.Errorf("%w: index entry %q", ErrArchiveFormat, e.Name)
		}
		a.index[e.Name] = e
		a.names = append(a.names, e.Name)
	}
	sort.Strings(a.names)
	return a, nil
}

// OpenArchiveFile opens the archive at path. Close releases the file.
func OpenArchiveFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	a, err := OpenArchive(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// Names returns the entry names in lexical order.
func (a *Archive) Names() []string {
	return append([]string(nil), a.names...)
}

func (a *Archive) Open(name string) ([]byte, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	e, ok := a.index[clean]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: clean, Err: fs.ErrNotExist}
	}
	stored := make([]byte, e.Stored)
	if _, err := io.ReadFull(io.NewSectionReader(a.r, a.base+e.Offset, e.Stored), stored); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %s: truncated", ErrArchiveFormat, clean)
		}
		return nil, fmt.Errorf("source: read %s: %w", clean, err)
	}
	if e.Raw {
		return stored, nil
	}
	data := make([]byte, e.Size)
	n, err := lz4.UncompressBlock(stored, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArchiveFormat, clean, err)
	}
	if int64(n) != e.Size {
		return nil, fmt.Errorf("%w: %s: %d bytes, want %d", ErrArchiveFormat, clean, n, e.Size)
	}
	return data, nil
}

// Close releases the underlying file of an archive opened with
// OpenArchiveFile.
func (a *Archive) Close() error {
	var err error
	a.once.Do(func() {
		if a.closer != nil {
			err = a.closer.Close()
		}
	})
	return err
}

// ArchiveWriter builds a resource archive. Entries are compressed as they
// are added; WriteTo emits the archive. It is safe for concurrent use.
type ArchiveWriter struct {
	mu      sync.Mutex
	comp    lz4.Compressor
	entries []archiveEntry
	blob    bytes.Buffer
}

// NewArchiveWriter returns an empty writer.
func NewArchiveWriter() *ArchiveWriter {
	return &ArchiveWriter{}
}

// Add compresses data under name. Adding a name twice is an error.
func (w *ArchiveWriter) Add(name string, data []byte) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		if e.Name == clean {
			return fmt.Errorf("source: duplicate archive entry %q", clean)
		}
	}

	// A destination shorter than the input makes the compressor report
	// incompressible data with n == 0.
	block := make([]byte, len(data))
	n, err := w.comp.CompressBlock(data, block)
	if err != nil && !errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
		return fmt.Errorf("source: compress %s: %w", clean, err)
	}
	e := archiveEntry{Name: clean, Offset: int64(w.blob.Len()), Size: int64(len(data))}
	if n == 0 || err != nil {
		e.Raw = true
		block = data
	} else {
		block = block[:n]
	}
	e.Stored = int64(len(block))
	w.blob.Write(block)
	w.entries = append(w.entries, e)
	return nil
}

// AddFS adds every regular file of fsys under its path.
func (w *ArchiveWriter) AddFS(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		return w.Add(p, data)
	})
}

// Len returns the number of entries added.
func (w *ArchiveWriter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// WriteTo writes the archive to out.
func (w *ArchiveWriter) WriteTo(out io.Writer) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var index bytes.Buffer
	if err := gob.NewEncoder(&index).Encode(w.entries); err != nil {
		return 0, fmt.Errorf("source: encode archive index: %w", err)
	}
	var head [len(archiveMagic) + indexSizeLength]byte
	copy(head[:], archiveMagic[:])
	binary.LittleEndian.PutUint64(head[len(archiveMagic):], uint64(index.Len()))

	var total int64
	for _, chunk := range [][]byte{head[:], index.Bytes(), w.blob.Bytes()} {
		n, err := out.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("source: write archive: %w", err)
		}
	}
	return total, nil
}
