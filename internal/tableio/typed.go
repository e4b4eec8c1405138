package tableio

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadCSV decodes a CSV file into a slice of T using csv struct tags.
// Columns missing from the file leave the corresponding fields zero.
func ReadCSV[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tableio: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return DecodeCSV[T](f)
}

// DecodeCSV decodes CSV text from r into a slice of T.
func DecodeCSV[T any](r io.Reader) ([]T, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "tableio: read header")
	}

	var out []T
	for {
		var row T
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "tableio: decode row %d", len(out)+1)
		}
		out = append(out, row)
	}
	return out, nil
}

// WriteCSV encodes rows to path, creating parent directories as needed.
// An empty slice still produces a header.
func WriteCSV[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "tableio: mkdir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tableio: create %s", path)
	}
	if err := EncodeCSV(f, rows); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "tableio: close %s", path)
}

// EncodeCSV writes rows as CSV to w.
func EncodeCSV[T any](w io.Writer, rows []T) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if len(rows) == 0 {
		var zero T
		if err := enc.EncodeHeader(zero); err != nil {
			return eris.Wrap(err, "tableio: encode header")
		}
	} else if err := enc.Encode(rows); err != nil {
		return eris.Wrap(err, "tableio: encode rows")
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "tableio: flush")
}

// WriteRecords writes a header and raw string records to path.
func WriteRecords(path string, header []string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "tableio: mkdir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tableio: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "tableio: write header")
	}
	if err := w.WriteAll(records); err != nil {
		return eris.Wrap(err, "tableio: write records")
	}
	return eris.Wrap(w.Error(), "tableio: flush")
}

// Cached returns the table stored at path when enabled and the file exists.
// Otherwise it computes the table, stores it at path, and returns it. The
// cache key is the path, so callers must encode every parameter in it.
func Cached[T any](path string, enabled bool, compute func() ([]T, error)) ([]T, error) {
	log := zap.L().With(zap.String("component", "cache"), zap.String("path", path))

	if enabled {
		if _, err := os.Stat(path); err == nil {
			rows, err := ReadCSV[T](path)
			if err != nil {
				return nil, err
			}
			log.Info("cache: hit", zap.Int("rows", len(rows)))
			return rows, nil
		}
	}

	rows, err := compute()
	if err != nil {
		return nil, err
	}
	if enabled {
		if err := WriteCSV(path, rows); err != nil {
			return nil, err
		}
		log.Info("cache: stored", zap.Int("rows", len(rows)))
	}
	return rows, nil
}
