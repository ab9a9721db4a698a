package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// WriteSnapshot stores records as zstd-compressed JSON lines. Unlike the CSV
// export it keeps error messages untruncated.
func WriteSnapshot(path string, records []Outcome) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("creating encoder: %w", err)
	}
	je := json.NewEncoder(enc)
	for i := range records {
		if err := je.Encode(&records[i]); err != nil {
			enc.Close()
			tmp.Close()
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func ReadSnapshot(path string) ([]Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer dec.Close()

	var out []Outcome
	jd := json.NewDecoder(dec)
	for {
		var o Outcome
		err := jd.Decode(&o)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding %s record %d: %w", path, len(out), err)
		}
		out = append(out, o)
	}
}
