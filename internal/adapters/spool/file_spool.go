package spool

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

const recordHeaderLen = 4

// FileSpool persists batches that exhausted the sink retry policy so they can
// be replayed on the next startup. Records are framed as
// [4 bytes big-endian length][length bytes json].
type FileSpool struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	batches   int
	sizeBytes int64
}

func NewFileSpool(dir string) (*FileSpool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "overflow.spool")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	s := &FileSpool{
		path:   path,
		file:   f,
		writer: bufio.NewWriterSize(f, 1<<20),
	}
	if err := s.scanExisting(); err != nil {
		return nil, err
	}
	return s, nil
}

// scanExisting counts intact records and truncates a torn tail left by a
// crash mid-append.
func (s *FileSpool) scanExisting() error {
	stat, err := s.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var offset int64
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				if err := s.file.Truncate(offset); err != nil {
					return err
				}
				break
			}
			return fmt.Errorf("spool scan header: %w", err)
		}
		length := binary.BigEndian.Uint32(hdr[:])
		if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if err := s.file.Truncate(offset); err != nil {
					return err
				}
				break
			}
			return fmt.Errorf("spool scan body: %w", err)
		}
		offset += recordHeaderLen + int64(length)
		s.batches++
	}

	s.sizeBytes = offset
	_, err = s.file.Seek(0, io.SeekEnd)
	return err
}

func (s *FileSpool) Append(points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(encodeRecord(points))
	if err != nil {
		return err
	}

	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))

	if _, err := s.writer.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := s.writer.Write(b); err != nil {
		return err
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}

	s.batches++
	s.sizeBytes += int64(len(b) + recordHeaderLen)
	return nil
}

func (s *FileSpool) Replay(fn func(points []domain.Point) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batches == 0 {
		return nil
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("spool replay header: %w", err)
		}
		length := binary.BigEndian.Uint32(hdr[:])
		b := make([]byte, length)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt spool record: %w", err)
		}

		var rec record
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("corrupt spool record: %w", err)
		}
		if err := fn(rec.points()); err != nil {
			return err
		}
	}

	return s.resetLocked()
}

func (s *FileSpool) Stats() ports.SpoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ports.SpoolStats{
		Batches:   s.batches,
		SizeBytes: s.sizeBytes,
	}
}

func (s *FileSpool) resetLocked() error {
	if err := s.file.Truncate(0); err != nil {
		return err
	}
	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	s.writer.Reset(s.file)
	s.batches = 0
	s.sizeBytes = 0
	return nil
}

// record is the spool wire form. Field values carry an explicit type marker
// so integer fields survive the JSON round trip.
type record struct {
	Points []recordPoint `json:"points"`
}

type recordPoint struct {
	Measurement string                `json:"m"`
	Tags        map[string]string     `json:"t,omitempty"`
	Fields      map[string]fieldValue `json:"f"`
	TimestampNS int64                 `json:"ts"`
}

type fieldValue struct {
	v any
}

func (f fieldValue) MarshalJSON() ([]byte, error) {
	switch v := f.v.(type) {
	case float64:
		return json.Marshal(map[string]float64{"f": v})
	case int64:
		return json.Marshal(map[string]int64{"i": v})
	case string:
		return json.Marshal(map[string]string{"s": v})
	case bool:
		return json.Marshal(map[string]bool{"b": v})
	default:
		return nil, fmt.Errorf("unsupported spool field type %T", v)
	}
}

func (f *fieldValue) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for marker, body := range raw {
		switch marker {
		case "f":
			var v float64
			if err := json.Unmarshal(body, &v); err != nil {
				return err
			}
			f.v = v
		case "i":
			var v int64
			if err := json.Unmarshal(body, &v); err != nil {
				return err
			}
			f.v = v
		case "s":
			var v string
			if err := json.Unmarshal(body, &v); err != nil {
				return err
			}
			f.v = v
		case "b":
			var v bool
			if err := json.Unmarshal(body, &v); err != nil {
				return err
			}
			f.v = v
		default:
			return fmt.Errorf("unknown spool field marker %q", marker)
		}
		return nil
	}
	return errors.New("empty spool field value")
}

func encodeRecord(points []domain.Point) record {
	rec := record{Points: make([]recordPoint, len(points))}
	for i, p := range points {
		fields := make(map[string]fieldValue, len(p.Fields))
		for k, v := range p.Fields {
			fields[k] = fieldValue{v: v}
		}
		rec.Points[i] = recordPoint{
			Measurement: p.Measurement,
			Tags:        p.Tags,
			Fields:      fields,
			TimestampNS: p.Timestamp.UnixNano(),
		}
	}
	return rec
}

func (r record) points() []domain.Point {
	points := make([]domain.Point, len(r.Points))
	for i, rp := range r.Points {
		fields := make(map[string]any, len(rp.Fields))
		for k, v := range rp.Fields {
			fields[k] = v.v
		}
		points[i] = domain.Point{
			Measurement: rp.Measurement,
			Tags:        rp.Tags,
			Fields:      fields,
			Timestamp:   time.Unix(0, rp.TimestampNS).UTC(),
		}
	}
	return points
}

var _ ports.Spool = (*FileSpool)(nil)
