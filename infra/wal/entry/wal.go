package entry

import (
	"encoding/binary"
	"errors"
	"os"
	"time"
)

var ErrClosed = errors.New("entry: journal closed")

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// SyncEveryAppend fsyncs after each record.
	SyncEveryAppend bool
}

// WAL is the append-only command journal. It is not safe for
// concurrent use; the order service appends under its own lock.
type WAL struct {
	dir        string
	segSize    int64
	segDur     time.Duration
	syncEach   bool
	current    *segment
	lastRotate time.Time
	buf        []byte
}

// Open resumes appending to the newest segment in cfg.Dir, first
// dropping a torn record at its end.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	index := 0
	if len(files) > 0 {
		newest := files[len(files)-1]
		index = segmentIndex(newest)
		// A crash mid-append leaves a partial frame behind.
		if _, err := repairTail(newest); err != nil {
			return nil, err
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 64 << 20
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segDur:     cfg.SegmentDuration,
		syncEach:   cfg.SyncEveryAppend,
		current:    seg,
		lastRotate: time.Now(),
	}, nil
}

func (w *WAL) Append(r *Record) error {
	if w.current == nil {
		return ErrClosed
	}
	payloadLen := uint32(len(r.Data))
	size := headerSize + int(payloadLen) + trailerSize
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	buf := w.buf[:size]

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := CRC32(buf[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)

	if err := w.current.append(buf); err != nil {
		return err
	}
	if w.syncEach {
		if err := w.current.sync(); err != nil {
			return err
		}
	}

	if w.shouldRotate() {
		return w.rotate()
	}
	return nil
}

func (w *WAL) shouldRotate() bool {
	if w.current.offset >= w.segSize {
		return true
	}
	return w.segDur > 0 && time.Since(w.lastRotate) >= w.segDur
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	_ = w.current.close()

	seg, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		w.current = nil
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// Sync flushes the active segment.
func (w *WAL) Sync() error {
	if w.current == nil {
		return ErrClosed
	}
	return w.current.sync()
}

func (w *WAL) Dir() string { return w.dir }

func (w *WAL) Close() error {
	if w.current == nil {
		return nil
	}
	err := w.current.sync()
	if cerr := w.current.close(); err == nil {
		err = cerr
	}
	w.current = nil
	return err
}

// TruncateBefore removes closed segments whose records all have
// seq <= seq. The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) (int, error) {
	files, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range files {
		if w.current != nil && segmentIndex(path) == w.current.index {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
