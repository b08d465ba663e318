package vecindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Snapshot layout (little-endian): magic, version, dim, count, then count
// int64 ids, then count*dim float32 vector components.
const (
	snapshotMagic   = uint32(0x45475658) // "EGVX"
	snapshotVersion = uint32(1)
)

// Save writes the full index to w.
func (f *Flat) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)

	header := []uint32{snapshotMagic, snapshotVersion, uint32(f.dim)}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("writing snapshot header: %w", err)
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(f.ids))); err != nil {
		return fmt.Errorf("writing snapshot count: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, f.ids); err != nil {
		return fmt.Errorf("writing snapshot ids: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, f.vectors); err != nil {
		return fmt.Errorf("writing snapshot vectors: %w", err)
	}
	return bw.Flush()
}

// Load reads a snapshot from r into a new index. The stored dimensionality
// must equal dim; a mismatch is ErrDimensionMismatch, a configuration
// error, not a retryable one.
func Load(r io.Reader, dim int) (*Flat, error) {
	br := bufio.NewReader(r)

	var magic, version, storedDim uint32
	for _, dst := range []*uint32{&magic, &version, &storedDim} {
		if err := binary.Read(br, binary.LittleEndian, dst); err != nil {
			return nil, fmt.Errorf("reading snapshot header: %w", err)
		}
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("not a vector index snapshot (magic %#x)", magic)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	if int(storedDim) != dim {
		return nil, fmt.Errorf("snapshot has %d dimensions, expected %d: %w", storedDim, dim, ErrDimensionMismatch)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading snapshot count: %w", err)
	}

	f, err := NewFlat(dim)
	if err != nil {
		return nil, err
	}
	f.ids = make([]int64, count)
	if err := binary.Read(br, binary.LittleEndian, f.ids); err != nil {
		return nil, fmt.Errorf("reading snapshot ids: %w", err)
	}
	f.vectors = make([]float32, count*uint64(dim))
	if err := binary.Read(br, binary.LittleEndian, f.vectors); err != nil {
		return nil, fmt.Errorf("reading snapshot vectors: %w", err)
	}

	for row, id := range f.ids {
		if _, ok := f.rows[id]; ok {
			return nil, fmt.Errorf("id %d appears twice in snapshot: %w", id, ErrDuplicateID)
		}
		f.rows[id] = row
	}
	return f, nil
}

// SaveFile persists the index to path, replacing any previous snapshot.
// The write goes through a temp file and rename so a crash mid-save never
// clobbers the old snapshot.
func (f *Flat) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// LoadFile reads the snapshot at path, or returns a new empty index when
// the file does not exist yet.
func LoadFile(path string, dim int) (*Flat, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewFlat(dim)
	}
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer file.Close()

	f, err := Load(file, dim)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", path, err)
	}
	return f, nil
}
