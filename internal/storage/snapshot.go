package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

// snapshotHeader precedes the entry stream in a snapshot file.
type snapshotHeader struct {
	Version  int               `msgpack:"v"`
	Metadata map[string]string `msgpack:"m"`
}

// WriteSnapshot streams the header and every row of src to w as msgpack values.
// It returns the number of rows written.
func WriteSnapshot(ctx context.Context, src Store, w io.Writer) (int64, error) {
	meta, err := src.Metadata(ctx)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(bw)
	if err := enc.Encode(&snapshotHeader{Version: snapshotVersion, Metadata: meta}); err != nil {
		return 0, fmt.Errorf("encode snapshot header: %w", err)
	}

	var n int64
	err = src.Each(ctx, func(e Entry) error {
		if err := enc.Encode(&e); err != nil {
			return fmt.Errorf("encode entry %d: %w", n, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, bw.Flush()
}

// ReadSnapshot decodes a snapshot from r into dst, writing rows in batches. Metadata from
// the header is copied over. It returns the number of rows read.
func ReadSnapshot(ctx context.Context, r io.Reader, dst Store, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	dec := msgpack.NewDecoder(bufio.NewReader(r))
	var header snapshotHeader
	if err := dec.Decode(&header); err != nil {
		return 0, fmt.Errorf("decode snapshot header: %w", err)
	}
	if header.Version != snapshotVersion {
		return 0, fmt.Errorf("unsupported snapshot version %d", header.Version)
	}

	var n int64
	batch := make([]Entry, 0, batchSize)
	for {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("decode entry %d: %w", n, err)
		}
		batch = append(batch, e)
		n++
		if len(batch) == batchSize {
			if err := dst.IncrementBatch(ctx, batch); err != nil {
				return n, err
			}
			batch = batch[:0]
		}
	}
	if err := dst.IncrementBatch(ctx, batch); err != nil {
		return n, err
	}

	for k, v := range header.Metadata {
		if err := dst.SetMetadata(ctx, k, v); err != nil {
			return n, err
		}
	}
	return n, nil
}

// SaveSnapshotFile writes a snapshot of src to path.
func SaveSnapshotFile(ctx context.Context, path string, src Store) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot: %w", err)
	}

	n, err := WriteSnapshot(ctx, src, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	log.Info("Snapshot written", "path", path, "rows", n)
	return n, nil
}

// LoadSnapshotFile reads the snapshot at path into dst.
func LoadSnapshotFile(ctx context.Context, path string, dst Store, batchSize int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	n, err := ReadSnapshot(ctx, f, dst, batchSize)
	if err != nil {
		return n, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	log.Info("Snapshot loaded", "path", path, "rows", n)
	return n, nil
}
