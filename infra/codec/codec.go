// Package codec encodes journal commands and trades in the protobuf
// wire format. Messages are built field by field with protowire, so the
// encoding stays compatible with a .proto schema without generated code.
package codec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"matchbook/domain/orderbook"
)

var ErrMalformed = errors.New("codec: malformed message")

type CommandKind uint8

const (
	CommandAdd CommandKind = iota + 1
	CommandCancel
	CommandReduce
	CommandExecute
)

func (k CommandKind) String() string {
	switch k {
	case CommandAdd:
		return "ADD"
	case CommandCancel:
		return "CANCEL"
	case CommandReduce:
		return "REDUCE"
	case CommandExecute:
		return "EXECUTE"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// Command is one book mutation as recorded in the journal.
//
//	message Command {
//	  uint32 kind     = 1;
//	  uint32 side     = 2;
//	  sint64 price    = 3;
//	  sint64 shares   = 4;
//	  uint64 order_id = 5;
//	  sint64 now      = 6;
//	}
type Command struct {
	Kind    CommandKind
	Side    orderbook.Side
	Price   int64
	Shares  int64
	OrderID orderbook.OrderID
	Now     int64
}

const (
	cmdKind protowire.Number = iota + 1
	cmdSide
	cmdPrice
	cmdShares
	cmdOrderID
	cmdNow
)

func MarshalCommand(c Command) []byte {
	b := make([]byte, 0, 32)
	b = appendUint(b, cmdKind, uint64(c.Kind))
	b = appendUint(b, cmdSide, uint64(c.Side))
	b = appendSint(b, cmdPrice, c.Price)
	b = appendSint(b, cmdShares, c.Shares)
	b = appendUint(b, cmdOrderID, uint64(c.OrderID))
	b = appendSint(b, cmdNow, c.Now)
	return b
}

func UnmarshalCommand(b []byte) (Command, error) {
	var c Command
	err := consumeFields(b, func(num protowire.Number, v uint64) {
		switch num {
		case cmdKind:
			c.Kind = CommandKind(v)
		case cmdSide:
			c.Side = orderbook.Side(v)
		case cmdPrice:
			c.Price = protowire.DecodeZigZag(v)
		case cmdShares:
			c.Shares = protowire.DecodeZigZag(v)
		case cmdOrderID:
			c.OrderID = orderbook.OrderID(v)
		case cmdNow:
			c.Now = protowire.DecodeZigZag(v)
		}
	})
	if err != nil {
		return Command{}, err
	}
	if c.Kind < CommandAdd || c.Kind > CommandExecute {
		return Command{}, fmt.Errorf("%w: command kind %d", ErrMalformed, c.Kind)
	}
	return c, nil
}

// Trade wire layout:
//
//	message Trade {
//	  uint64 id            = 1;
//	  sint64 qty           = 2;
//	  sint64 price         = 3;
//	  sint64 time          = 4;
//	  uint64 buy_order_id  = 5;
//	  uint64 sell_order_id = 6;
//	  uint32 aggressor     = 7;
//	}
const (
	txID protowire.Number = iota + 1
	txQty
	txPrice
	txTime
	txBuy
	txSell
	txAggressor
)

func MarshalTransaction(tx orderbook.Transaction) []byte {
	return AppendTransaction(make([]byte, 0, 48), tx)
}

// AppendTransaction appends the encoding of tx to b.
func AppendTransaction(b []byte, tx orderbook.Transaction) []byte {
	b = appendUint(b, txID, tx.ID)
	b = appendSint(b, txQty, tx.Qty)
	b = appendSint(b, txPrice, tx.Price)
	b = appendSint(b, txTime, tx.Time)
	b = appendUint(b, txBuy, uint64(tx.BuyOrderID))
	b = appendUint(b, txSell, uint64(tx.SellOrderID))
	b = appendUint(b, txAggressor, uint64(tx.Aggressor))
	return b
}

func UnmarshalTransaction(b []byte) (orderbook.Transaction, error) {
	var tx orderbook.Transaction
	err := consumeFields(b, func(num protowire.Number, v uint64) {
		switch num {
		case txID:
			tx.ID = v
		case txQty:
			tx.Qty = protowire.DecodeZigZag(v)
		case txPrice:
			tx.Price = protowire.DecodeZigZag(v)
		case txTime:
			tx.Time = protowire.DecodeZigZag(v)
		case txBuy:
			tx.BuyOrderID = orderbook.OrderID(v)
		case txSell:
			tx.SellOrderID = orderbook.OrderID(v)
		case txAggressor:
			tx.Aggressor = orderbook.Side(v)
		}
	})
	if err != nil {
		return orderbook.Transaction{}, err
	}
	if tx.ID == 0 {
		return orderbook.Transaction{}, fmt.Errorf("%w: trade without id", ErrMalformed)
	}
	return tx, nil
}

// Zero values are omitted, as proto3 does.
func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	return appendUint(b, num, protowire.EncodeZigZag(v))
}

// consumeFields hands every varint field to fn and skips fields of any
// other wire type, so unknown fields from newer writers are tolerated.
func consumeFields(b []byte, fn func(protowire.Number, uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		fn(num, v)
	}
	return nil
}
