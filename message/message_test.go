package message

import (
	"github.com/Zereker/simwire/frame"
)

type ping struct{}

func (*ping) MarshalFrame(*frame.Frame)   {}
func (*ping) UnmarshalFrame(*frame.Frame) {}

type move struct {
	Entity uint32
	X, Y   float64
	Tick   int64
	Sprint bool
}

func (m *move) MarshalFrame(f *frame.Frame) {
	f.WriteUint32(m.Entity)
	f.WriteFloat64(m.X)
	f.WriteFloat64(m.Y)
	f.WriteInt64(m.Tick)
	f.WriteBool(m.Sprint)
}

func (m *move) UnmarshalFrame(f *frame.Frame) {
	m.Entity = f.ReadUint32()
	m.X = f.ReadFloat64()
	m.Y = f.ReadFloat64()
	m.Tick = f.ReadInt64()
	m.Sprint = f.ReadBool()
}

type chat struct {
	From string
	Text string
}

func (m *chat) MarshalFrame(f *frame.Frame) {
	f.WriteString(m.From)
	f.WriteString(m.Text)
}

func (m *chat) UnmarshalFrame(f *frame.Frame) {
	m.From = f.ReadString()
	m.Text = f.ReadString()
}

type snapshot struct {
	Tick  int64
	State []byte
}

func (m *snapshot) MarshalFrame(f *frame.Frame) {
	f.WriteInt64(m.Tick)
	f.WriteBytes(m.State)
}

func (m *snapshot) UnmarshalFrame(f *frame.Frame) {
	m.Tick = f.ReadInt64()
	m.State = f.ReadBytes()
}

// shortMove writes fewer fields than move reads.
type shortMove struct{ Entity uint32 }

func (m *shortMove) MarshalFrame(f *frame.Frame)   { f.WriteUint32(m.Entity) }
func (m *shortMove) UnmarshalFrame(f *frame.Frame) { m.Entity = f.ReadUint32() }

const (
	pingID     uint32 = 101
	moveID     uint32 = 102
	chatID     uint32 = 103
	snapshotID uint32 = 104
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(pingID, func() Message { return new(ping) })
	r.MustRegister(moveID, func() Message { return new(move) })
	r.MustRegister(chatID, func() Message { return new(chat) })
	r.MustRegister(snapshotID, func() Message { return new(snapshot) })
	return r
}
