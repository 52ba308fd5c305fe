package store

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/pitabwire/cardforge/model"
)

// Backup writes a tar.gz archive of every collection file. Loaded collections
// are written as the store holds them; collections that failed to load are
// copied byte for byte so their content is not lost.
func (s *Store) Backup(ctx context.Context, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	st := s.current()
	now := time.Now()
	for _, info := range model.Catalog() {
		var data []byte
		if doc, ok := st.docs[info.Name]; ok {
			encoded, err := Encode(info, doc)
			if err != nil {
				return fmt.Errorf("store: backup %s: %w", info.Path, err)
			}
			data = encoded
		} else {
			raw, err := s.fsys.ReadFile(ctx, info.Path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return fmt.Errorf("store: backup %s: %w", info.Path, err)
			}
			data = raw
		}

		hdr := &tar.Header{
			Name:    info.Path,
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: now,
		}
		if mt := st.stamps[info.Path]; !mt.IsZero() {
			hdr.ModTime = mt
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(data); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
