package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/404minds/obd-receiver/internal/types"
	"github.com/pkg/errors"
)

// JsonLinesStore appends one JSON document per line.
type JsonLinesStore struct {
	queue
	File     io.Writer
	DeviceID string
}

func NewJsonLinesStore(w io.Writer, deviceID string) *JsonLinesStore {
	return &JsonLinesStore{queue: newQueue(), File: w, DeviceID: deviceID}
}

// OpenJsonLinesFile opens <dataDir>/<deviceID>-<date>.jsonl for appending.
func OpenJsonLinesFile(dataDir, deviceID string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dataDir)
	}
	name := filepath.Join(dataDir, fmt.Sprintf("%s-%s.jsonl", deviceID, now.UTC().Format("20060102")))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return file, nil
}

func (s *JsonLinesStore) Process(ctx context.Context) {
	s.drain(ctx, "jsonl", s.save)
	if closer, ok := s.File.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (s *JsonLinesStore) save(_ context.Context, status types.DeviceStatus) error {
	b, err := json.Marshal(status)
	if err != nil {
		return errors.Wrap(err, "marshal device status")
	}
	if _, err := fmt.Fprintln(s.File, string(b)); err != nil {
		return err
	}
	if f, ok := s.File.(*os.File); ok {
		return f.Sync()
	}
	return nil
}
