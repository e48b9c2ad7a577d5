package uploader

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/vvka-141/pgbulk/internal/copytext"
	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// spill is a partition encoded to a local file, ready to be replayed into COPY.
type spill struct {
	path        string
	compression pgbulk.Compression
	rows        int64

	// encoded is the size of the COPY text, size the size of the file on disk.
	encoded int64
	size    int64
}

// writeSpill encodes every row of it into a new file in dir.
// On error no file is left behind.
func writeSpill(dir string, index int, compression pgbulk.Compression, enc *copytext.Encoder, it pgbulk.RowIterator) (_ *spill, err error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("pgbulk-part-%05d-*.copy", index))
	if err != nil {
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	var w io.Writer = f
	var zw *zstd.Encoder
	if compression == pgbulk.CompressionZstd {
		zw, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("failed to create spill compressor: %w", err)
		}
		w = zw
	}

	stats, err := copytext.WritePartition(w, enc, it)
	if err != nil {
		if zw != nil {
			zw.Close()
		}
		return nil, fmt.Errorf("failed to spill partition %d: %w", index, err)
	}
	if zw != nil {
		if err = zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to flush spill compressor: %w", err)
		}
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat spill file: %w", err)
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close spill file: %w", err)
	}

	return &spill{
		path:        f.Name(),
		compression: compression,
		rows:        stats.Rows,
		encoded:     stats.Bytes,
		size:        info.Size(),
	}, nil
}

// open returns a reader over the COPY text.
func (s *spill) open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen spill file: %w", err)
	}
	if s.compression != pgbulk.CompressionZstd {
		return f, nil
	}
	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create spill decompressor: %w", err)
	}
	return &zstdFile{Decoder: dec, file: f}, nil
}

func (s *spill) remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type zstdFile struct {
	*zstd.Decoder
	file *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}
