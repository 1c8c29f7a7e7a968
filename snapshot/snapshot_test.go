package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/orderbook"
	"matchbook/infra/sequence"
)

func seededBook(t *testing.T) (*orderbook.Book, *sequence.Sequencer) {
	t.Helper()
	ids := sequence.New(0)
	b := orderbook.New(orderbook.Config{Capacity: 16, MaxPrice: 1000, IDs: ids, Debug: true})
	for _, o := range []struct {
		side   orderbook.Side
		price  int64
		shares int64
	}{
		{orderbook.Sell, 101, 50},
		{orderbook.Sell, 102, 30},
		{orderbook.Buy, 99, 10},
		{orderbook.Buy, 99, 20},
		{orderbook.Buy, 102, 60},
	} {
		_, err := b.AddOrder(o.side, o.price, o.shares)
		require.NoError(t, err)
	}
	require.Len(t, b.ExecuteOrders(1), 2)
	return b, ids
}

func TestWriteLoadRestore(t *testing.T) {
	book, ids := seededBook(t)
	dir := t.TempDir()

	w := &Writer{Dir: dir}
	require.NoError(t, w.Write(Capture(book, 17, ids.Current())))

	s, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, uint64(17), s.JournalSeq)
	assert.Equal(t, uint64(5), s.LastOrderID)
	assert.Equal(t, uint64(2), s.LastTradeID)
	require.Len(t, s.Orders, 3)

	restoredIDs := sequence.New(s.LastOrderID)
	restored := orderbook.New(orderbook.Config{
		Capacity: 16, MaxPrice: 1000, IDs: restoredIDs, LastTradeID: s.LastTradeID, Debug: true,
	})
	require.NoError(t, s.Restore(restored))

	assert.Equal(t, book.Depth(orderbook.Buy, 0), restored.Depth(orderbook.Buy, 0))
	assert.Equal(t, book.Depth(orderbook.Sell, 0), restored.Depth(orderbook.Sell, 0))
	o, ok := restored.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, orderbook.PartiallyFilled, o.Status)
	assert.Equal(t, int64(20), o.Remaining)
	assert.Equal(t, int64(1), o.LastFill)

	// both books continue identically
	for _, b := range []*orderbook.Book{book, restored} {
		_, err := b.AddOrder(orderbook.Sell, 99, 25)
		require.NoError(t, err)
	}
	want := book.ExecuteOrders(2)
	assert.Equal(t, want, restored.ExecuteOrders(2))
	assert.Equal(t, uint64(3), want[0].ID)
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("not gob"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestWriteReplacesPrevious(t *testing.T) {
	book, ids := seededBook(t)
	w := &Writer{Dir: t.TempDir()}
	require.NoError(t, w.Write(Capture(book, 1, ids.Current())))
	require.NoError(t, w.Write(Capture(book, 2, ids.Current())))

	s, err := Load(w.Dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.JournalSeq)

	entries, err := os.ReadDir(w.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}
