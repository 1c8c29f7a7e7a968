package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrCorrupt      = errors.New("entry: corrupt record")
	ErrNonMonotonic = errors.New("entry: non-monotonic sequence")
	errTornRecord   = errors.New("entry: torn record")
)

const maxPayload = 16 << 20

type ReplayHandler func(*Record) error

// Replay feeds every record with seq > after to fn in journal order and
// returns the last sequence seen. A record cut short at the very end of
// the newest segment is treated as the end of the journal.
func Replay(dir string, after uint64, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	lastSeq = after
	var prev uint64
	for i, path := range files {
		last := i == len(files)-1
		err := replaySegment(path, func(rec *Record) error {
			if rec.Seq <= prev {
				return fmt.Errorf("%w: %d after %d in %s", ErrNonMonotonic, rec.Seq, prev, path)
			}
			prev = rec.Seq
			if rec.Seq <= after {
				return nil
			}
			lastSeq = rec.Seq
			return fn(rec)
		})
		if errors.Is(err, errTornRecord) && last {
			break
		}
		if err != nil {
			return lastSeq, err
		}
	}

	return lastSeq, nil
}

func replaySegment(path string, fn ReplayHandler) error {
	_, err := scanSegment(path, fn)
	return err
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errTornRecord
		}
		return nil, err
	}

	t := RecordType(header[0])
	seq := binary.BigEndian.Uint64(header[1:9])
	ts := binary.BigEndian.Uint64(header[9:17])
	l := binary.BigEndian.Uint32(header[17:21])
	if l > maxPayload {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorrupt, l)
	}

	data := make([]byte, l+trailerSize)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errTornRecord
		}
		return nil, err
	}

	payload := data[:l]
	crc := binary.BigEndian.Uint32(data[l:])

	if !CRC32Valid(append(header, payload...), crc) {
		return nil, fmt.Errorf("%w: crc mismatch at seq %d", ErrCorrupt, seq)
	}

	return &Record{
		Type: t,
		Seq:  seq,
		Time: int64(ts),
		Data: payload,
	}, nil
}
