package entry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// scanSegment feeds every intact record of a segment to fn and returns
// the offset just past the last one. A record cut short at the end of
// the file stops the scan with errTornRecord.
func scanSegment(path string, fn ReplayHandler) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var end int64
	for {
		rec, err := readRecord(r)
		if errors.Is(err, io.EOF) {
			return end, nil
		}
		if err != nil {
			return end, fmt.Errorf("%s: %w", path, err)
		}
		end += int64(headerSize + len(rec.Data) + trailerSize)
		if fn != nil {
			if err := fn(rec); err != nil {
				return end, err
			}
		}
	}
}

// maxSeqInSegment returns the highest sequence in a segment. It is used
// only for snapshot-based truncation.
func maxSeqInSegment(path string) (uint64, error) {
	var max uint64
	_, err := scanSegment(path, func(rec *Record) error {
		max = rec.Seq
		return nil
	})
	if errors.Is(err, errTornRecord) {
		err = nil
	}
	return max, err
}

// repairTail cuts a torn record off the end of a segment so appends
// resume on a frame boundary. Any other damage is returned.
func repairTail(path string) (int64, error) {
	end, err := scanSegment(path, nil)
	if !errors.Is(err, errTornRecord) {
		return 0, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if err := os.Truncate(path, end); err != nil {
		return 0, err
	}
	return st.Size() - end, nil
}
