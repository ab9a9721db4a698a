package result

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/signalnine/rollbench/internal/classify"
)

// DefaultMaxMessageLen bounds the error message column.
const DefaultMaxMessageLen = 200

// Header is the fixed column order of the CSV export.
var Header = []string{
	"category",
	"resource_kind",
	"depth",
	"pattern",
	"iteration",
	"expected_failure",
	"failed",
	"abort_code",
	"computation_cost",
	"storage_cost",
	"storage_rebate",
	"net_cost",
	"latency_ms",
	"error_kind",
	"error_message",
	"timestamp",
	"tx_digest",
}

// TruncateMessage flattens newlines and cuts the message to maxLen runes.
func TruncateMessage(msg string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLen
	}
	msg = strings.ReplaceAll(msg, "\r\n", " ")
	msg = strings.NewReplacer("\n", " ", "\r", " ").Replace(msg)
	r := []rune(msg)
	if len(r) > maxLen {
		return string(r[:maxLen])
	}
	return msg
}

func row(o Outcome, maxLen int) []string {
	code := ""
	if o.AbortCode != nil {
		code = strconv.FormatUint(*o.AbortCode, 10)
	}
	return []string{
		o.Category,
		string(o.Resource),
		string(o.Depth),
		o.Pattern,
		strconv.Itoa(o.Iteration),
		strconv.FormatBool(o.ExpectedFailure),
		strconv.FormatBool(o.Failed),
		code,
		strconv.FormatUint(o.ComputationCost, 10),
		strconv.FormatUint(o.StorageCost, 10),
		strconv.FormatUint(o.StorageRebate, 10),
		strconv.FormatInt(o.NetCost, 10),
		strconv.FormatInt(o.LatencyMs, 10),
		string(o.ErrorKind),
		TruncateMessage(o.ErrorMessage, maxLen),
		o.Timestamp.UTC().Format(time.RFC3339Nano),
		o.TxDigest,
	}
}

func writeRows(w io.Writer, records []Outcome, maxLen int, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(Header); err != nil {
			return err
		}
	}
	for _, o := range records {
		if err := cw.Write(row(o, maxLen)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSV replaces path with a fresh export of records.
func WriteCSV(path string, records []Outcome, maxLen int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if err := writeRows(tmp, records, maxLen, true); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// AppendCSV adds records to path. A file whose header differs from Header is
// moved aside to <path>.<stamp>.bak and a fresh file is started. It returns
// the backup path when one was made.
func AppendCSV(path string, records []Outcome, maxLen int) (string, error) {
	existing, err := readHeader(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	var backup string
	if existing != nil && !slices.Equal(existing, Header) {
		backup = fmt.Sprintf("%s.%s.bak", path, time.Now().UTC().Format("20060102T150405"))
		if err := os.Rename(path, backup); err != nil {
			return "", fmt.Errorf("moving aside %s: %w", path, err)
		}
		existing = nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return backup, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return backup, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := writeRows(f, records, maxLen, existing == nil); err != nil {
		f.Close()
		return backup, fmt.Errorf("appending to %s: %w", path, err)
	}
	return backup, f.Close()
}

// readHeader returns nil for an empty file.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := csv.NewReader(f).Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		// An unreadable header is treated as foreign so the file gets
		// moved aside rather than appended to.
		return []string{}, nil
	}
	return rec, nil
}

// ReadCSV parses an export written by WriteCSV or AppendCSV. Error messages
// come back truncated as they were written.
func ReadCSV(path string) ([]Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	head, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	if !slices.Equal(head, Header) {
		return nil, fmt.Errorf("%s: unexpected header %v", path, head)
	}
	var out []Outcome
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		o, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, o)
	}
}

func parseRow(rec []string) (Outcome, error) {
	o := Outcome{
		Category:     rec[0],
		Resource:     ResourceKind(rec[1]),
		Depth:        Depth(rec[2]),
		Pattern:      rec[3],
		ErrorKind:    classify.Kind(rec[13]),
		ErrorMessage: rec[14],
		TxDigest:     rec[16],
	}
	var err error
	if o.Iteration, err = strconv.Atoi(rec[4]); err != nil {
		return o, fmt.Errorf("iteration: %w", err)
	}
	if o.ExpectedFailure, err = strconv.ParseBool(rec[5]); err != nil {
		return o, fmt.Errorf("expected_failure: %w", err)
	}
	if o.Failed, err = strconv.ParseBool(rec[6]); err != nil {
		return o, fmt.Errorf("failed: %w", err)
	}
	if rec[7] != "" {
		code, err := strconv.ParseUint(rec[7], 10, 64)
		if err != nil {
			return o, fmt.Errorf("abort_code: %w", err)
		}
		o.AbortCode = &code
	}
	if o.ComputationCost, err = strconv.ParseUint(rec[8], 10, 64); err != nil {
		return o, fmt.Errorf("computation_cost: %w", err)
	}
	if o.StorageCost, err = strconv.ParseUint(rec[9], 10, 64); err != nil {
		return o, fmt.Errorf("storage_cost: %w", err)
	}
	if o.StorageRebate, err = strconv.ParseUint(rec[10], 10, 64); err != nil {
		return o, fmt.Errorf("storage_rebate: %w", err)
	}
	if o.NetCost, err = strconv.ParseInt(rec[11], 10, 64); err != nil {
		return o, fmt.Errorf("net_cost: %w", err)
	}
	if o.LatencyMs, err = strconv.ParseInt(rec[12], 10, 64); err != nil {
		return o, fmt.Errorf("latency_ms: %w", err)
	}
	if o.Timestamp, err = time.Parse(time.RFC3339Nano, rec[15]); err != nil {
		return o, fmt.Errorf("timestamp: %w", err)
	}
	return o, nil
}
