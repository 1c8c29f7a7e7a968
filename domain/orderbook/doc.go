// Package orderbook implements a single-instrument limit order book
// with price-time priority matching.
//
// Orders live in a fixed-capacity slab and are linked into per-price
// FIFO levels by slab index. Each side keeps its levels in a Ladder:
// either a preallocated array over a bounded tick domain with a bitset
// of occupied prices, or a B-tree for unbounded prices.
//
// Submission and crossing are separate steps. AddOrder only rests an
// order; ExecuteOrders repeatedly trades the head of the best bid
// against the head of the best ask until the book no longer crosses.
// Each trade prints at the limit price of whichever order entered
// first.
//
// A Book is single-writer and performs no I/O and no locking.
package orderbook
