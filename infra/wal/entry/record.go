package entry

import "matchbook/infra/codec"

type RecordType uint8

const (
	RecordAdd RecordType = iota + 1
	RecordCancel
	RecordReduce
	RecordExecute
)

// Frame:
// [type:1][seq:8][time:8][len:4][payload][crc:4]
const (
	headerSize  = 1 + 8 + 8 + 4
	trailerSize = 4
)

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

// NewRecord frames an encoded command. Time is the command's logical
// time, so replaying a journal reproduces the same trades.
func NewRecord(seq uint64, c codec.Command) *Record {
	return &Record{
		Type: RecordType(c.Kind),
		Seq:  seq,
		Time: c.Now,
		Data: codec.MarshalCommand(c),
	}
}

// Command decodes the record payload.
func (r *Record) Command() (codec.Command, error) {
	return codec.UnmarshalCommand(r.Data)
}
