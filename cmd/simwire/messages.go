package main

import (
	"fmt"

	"github.com/Zereker/simwire/frame"
	"github.com/Zereker/simwire/message"
)

// Message ids of the sample simulation protocol.
const (
	joinID uint32 = message.MinID + iota
	moveID
	chatID
	pingID
)

// Join announces an entity entering the world.
type Join struct {
	Entity uint32
	Name   string
}

func (m *Join) MarshalFrame(f *frame.Frame) {
	f.WriteUint32(m.Entity)
	f.WriteString(m.Name)
}

func (m *Join) UnmarshalFrame(f *frame.Frame) {
	m.Entity = f.ReadUint32()
	m.Name = f.ReadString()
}

func (m *Join) String() string {
	return fmt.Sprintf("join entity=%d name=%q", m.Entity, m.Name)
}

// Move carries one position update.
type Move struct {
	Entity uint32
	Tick   int64
	X, Y   float32
	Sprint bool
}

func (m *Move) MarshalFrame(f *frame.Frame) {
	f.WriteUint32(m.Entity)
	f.WriteInt64(m.Tick)
	f.WriteFloat32(m.X)
	f.WriteFloat32(m.Y)
	f.WriteBool(m.Sprint)
}

func (m *Move) UnmarshalFrame(f *frame.Frame) {
	m.Entity = f.ReadUint32()
	m.Tick = f.ReadInt64()
	m.X = f.ReadFloat32()
	m.Y = f.ReadFloat32()
	m.Sprint = f.ReadBool()
}

func (m *Move) String() string {
	return fmt.Sprintf("move entity=%d tick=%d pos=(%.2f,%.2f) sprint=%t", m.Entity, m.Tick, m.X, m.Y, m.Sprint)
}

// Chat is free text from one entity.
type Chat struct {
	Entity uint32
	Text   string
}

func (m *Chat) MarshalFrame(f *frame.Frame) {
	f.WriteUint32(m.Entity)
	f.WriteString(m.Text)
}

func (m *Chat) UnmarshalFrame(f *frame.Frame) {
	m.Entity = f.ReadUint32()
	m.Text = f.ReadString()
}

func (m *Chat) String() string {
	return fmt.Sprintf("chat entity=%d text=%q", m.Entity, m.Text)
}

// Ping has no payload; the frame timestamp is the interesting part.
type Ping struct{}

func (*Ping) MarshalFrame(*frame.Frame)   {}
func (*Ping) UnmarshalFrame(*frame.Frame) {}

func (*Ping) String() string { return "ping" }

func newRegistry() *message.Registry {
	r := message.NewRegistry()
	r.MustRegister(joinID, func() message.Message { return new(Join) })
	r.MustRegister(moveID, func() message.Message { return new(Move) })
	r.MustRegister(chatID, func() message.Message { return new(Chat) })
	r.MustRegister(pingID, func() message.Message { return new(Ping) })
	return r
}
