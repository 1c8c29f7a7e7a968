package entry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
)

func openTest(t *testing.T, dir string, segSize int64) *WAL {
	t.Helper()
	w, err := Open(Config{Dir: dir, SegmentSize: segSize})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func appendN(t *testing.T, w *WAL, from, to uint64) {
	t.Helper()
	for seq := from; seq <= to; seq++ {
		c := codec.Command{Kind: codec.CommandAdd, Side: orderbook.Sell, Price: int64(100 + seq), Shares: 10}
		require.NoError(t, w.Append(NewRecord(seq, c)))
	}
}

func collect(t *testing.T, dir string, after uint64) ([]*Record, uint64) {
	t.Helper()
	var out []*Record
	last, err := Replay(dir, after, func(r *Record) error {
		out = append(out, r)
		return nil
	})
	require.NoError(t, err)
	return out, last
}

func TestAppendReplay(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 1<<20)
	appendN(t, w, 1, 5)
	require.NoError(t, w.Append(NewRecord(6, codec.Command{Kind: codec.CommandExecute, Now: 42})))
	require.NoError(t, w.Sync())

	recs, last := collect(t, dir, 0)
	require.Len(t, recs, 6)
	assert.Equal(t, uint64(6), last)
	assert.Equal(t, RecordExecute, recs[5].Type)
	assert.Equal(t, int64(42), recs[5].Time)

	c, err := recs[2].Command()
	require.NoError(t, err)
	assert.Equal(t, codec.CommandAdd, c.Kind)
	assert.Equal(t, int64(103), c.Price)
}

func TestReplaySkipsUpToAfter(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 1<<20)
	appendN(t, w, 1, 10)

	recs, last := collect(t, dir, 7)
	require.Len(t, recs, 3)
	assert.Equal(t, uint64(8), recs[0].Seq)
	assert.Equal(t, uint64(10), last)

	recs, last = collect(t, dir, 10)
	assert.Empty(t, recs)
	assert.Equal(t, uint64(10), last)
}

func TestRotationAndReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 64})
	require.NoError(t, err)
	appendN(t, w, 1, 6)
	require.NoError(t, w.Close())

	files, err := listSegments(dir)
	require.NoError(t, err)
	assert.Greater(t, len(files), 1)

	w = openTest(t, dir, 64)
	appendN(t, w, 7, 8)

	recs, last := collect(t, dir, 0)
	assert.Len(t, recs, 8)
	assert.Equal(t, uint64(8), last)
}

func TestTruncateBeforeKeepsActiveSegment(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 64)
	appendN(t, w, 1, 6)

	removed, err := w.TruncateBefore(6)
	require.NoError(t, err)
	assert.Positive(t, removed)

	files, err := listSegments(dir)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, w.current.index, segmentIndex(files[len(files)-1]))

	appendN(t, w, 7, 7)
	recs, _ := collect(t, dir, 6)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(7), recs[0].Seq)
}

func TestReplayToleratesTornTail(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 1<<20)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	st, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, st.Size()-3))

	recs, last := collect(t, dir, 0)
	assert.Len(t, recs, 2)
	assert.Equal(t, uint64(2), last)
}

func TestReopenDropsTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	st, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, st.Size()-3))

	w = openTest(t, dir, 1<<20)
	appendN(t, w, 3, 4)
	require.NoError(t, w.Sync())

	recs, last := collect(t, dir, 0)
	require.Len(t, recs, 4)
	assert.Equal(t, uint64(4), last)
	for i, r := range recs {
		assert.Equal(t, uint64(i+1), r.Seq)
	}
}

func TestReopenRejectsCorruptSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	appendN(t, w, 1, 2)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[headerSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(Config{Dir: dir})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReplayDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 1<<20)
	appendN(t, w, 1, 2)
	require.NoError(t, w.Close())

	path := filepath.Join(dir, "segment-000000.wal")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[headerSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Replay(dir, 0, func(*Record) error { return nil })
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReplayRejectsNonMonotonic(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, 1<<20)
	appendN(t, w, 5, 5)
	appendN(t, w, 3, 3)

	_, err := Replay(dir, 0, func(*Record) error { return nil })
	assert.ErrorIs(t, err, ErrNonMonotonic)
}

func TestAppendAfterClose(t *testing.T) {
	w, err := Open(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append(NewRecord(1, codec.Command{Kind: codec.CommandExecute})), ErrClosed)
}

func BenchmarkAppend(b *testing.B) {
	w, err := Open(Config{Dir: b.TempDir(), SegmentSize: 64 << 20})
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()
	c := codec.Command{Kind: codec.CommandAdd, Side: orderbook.Buy, Price: 100, Shares: 1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := w.Append(NewRecord(uint64(i+1), c)); err != nil {
			b.Fatal(err)
		}
	}
}
