// Package workload generates seeded synthetic order flow and drives it
// through an order service.
package workload

import (
	"math/rand/v2"

	"github.com/google/uuid"

	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
)

type Config struct {
	Seed   uint64
	Orders int
	// CancelRatio is the probability that a step cancels a live order
	// instead of adding one.
	CancelRatio float64
	// Batch is the number of adds between Execute commands.
	Batch     int
	MidPrice  int64
	Spread    int64
	MaxShares int64
}

// Generator yields a deterministic command stream for a given Config.
// The same seed and the same Track feedback give the same stream.
type Generator struct {
	ID   uuid.UUID
	cfg  Config
	rng  *rand.Rand
	live []orderbook.OrderID
	adds int
	sent int
	now  int64
}

func NewGenerator(cfg Config) *Generator {
	if cfg.Batch <= 0 {
		cfg.Batch = 1
	}
	if cfg.MaxShares <= 0 {
		cfg.MaxShares = 1
	}
	if cfg.MidPrice <= 0 {
		cfg.MidPrice = 1
	}
	return &Generator{
		ID:  uuid.New(),
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Next returns the next command, or false once Orders adds and
// cancels have been produced. An Execute follows every Batch adds and
// closes the stream.
func (g *Generator) Next() (codec.Command, bool) {
	if g.sent >= g.cfg.Orders {
		if g.adds > 0 {
			return g.execute(), true
		}
		return codec.Command{}, false
	}
	if g.adds >= g.cfg.Batch {
		return g.execute(), true
	}
	g.sent++

	if len(g.live) > 0 && g.rng.Float64() < g.cfg.CancelRatio {
		i := g.rng.IntN(len(g.live))
		id := g.live[i]
		g.live[i] = g.live[len(g.live)-1]
		g.live = g.live[:len(g.live)-1]
		return codec.Command{Kind: codec.CommandCancel, OrderID: id}, true
	}

	g.adds++
	side := orderbook.Buy
	if g.rng.IntN(2) == 1 {
		side = orderbook.Sell
	}
	price := g.cfg.MidPrice
	if g.cfg.Spread > 0 {
		price += g.rng.Int64N(2*g.cfg.Spread+1) - g.cfg.Spread
	}
	return codec.Command{
		Kind:   codec.CommandAdd,
		Side:   side,
		Price:  max(price, 1),
		Shares: 1 + g.rng.Int64N(g.cfg.MaxShares),
	}, true
}

func (g *Generator) execute() codec.Command {
	g.adds = 0
	g.now++
	return codec.Command{Kind: codec.CommandExecute, Now: g.now}
}

// Track makes id a cancel candidate. The id may fill before it is
// picked; the cancel then reports not found.
func (g *Generator) Track(id orderbook.OrderID) {
	g.live = append(g.live, id)
}

// Live returns the number of cancel candidates.
func (g *Generator) Live() int { return len(g.live) }
