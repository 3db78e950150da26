package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/Zereker/simwire"
	"github.com/Zereker/simwire/config"
	"github.com/Zereker/simwire/message"
)

var sendCmd = &cli.Command{
	Name:  "send",
	Usage: "join a relay, send a burst of moves and a ping, print what comes back",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "connect", Aliases: []string{"c"}, Usage: "tcp address of the relay"},
		&cli.UintFlag{Name: "entity", Value: 1, Usage: "entity id to move"},
		&cli.StringFlag{Name: "name", Value: "walker", Usage: "name sent with the join"},
		&cli.IntFlag{Name: "moves", Aliases: []string{"n"}, Value: 10, Usage: "number of moves to send"},
		&cli.DurationFlag{Name: "interval", Value: 50 * time.Millisecond, Usage: "pause between moves"},
		&cli.StringFlag{Name: "chat", Usage: "optional chat line sent after the moves"},
		&cli.DurationFlag{Name: "wait", Value: 5 * time.Second, Usage: "how long to wait for the ping to come back"},
	},
	Action: func(c *cli.Context) error {
		cfg := appConfig
		if c.IsSet("connect") {
			cfg.Connect = c.String("connect")
		}

		plan := sendPlan{
			entity:   uint32(c.Uint("entity")),
			name:     c.String("name"),
			moves:    c.Int("moves"),
			interval: c.Duration("interval"),
			chat:     c.String("chat"),
			wait:     c.Duration("wait"),
		}
		return send(longctx, cfg, plan, c.App.Writer)
	},
}

type sendPlan struct {
	entity   uint32
	name     string
	moves    int
	interval time.Duration
	chat     string
	wait     time.Duration
}

// messages returns the sequence to send: a join, the moves along a circle,
// the optional chat line and a closing ping.
func (p sendPlan) messages() []message.Message {
	msgs := []message.Message{&Join{Entity: p.entity, Name: p.name}}
	for i := 0; i < p.moves; i++ {
		angle := 2 * math.Pi * float64(i) / float64(max(p.moves, 1))
		msgs = append(msgs, &Move{
			Entity: p.entity,
			Tick:   int64(i),
			X:      float32(10 * math.Cos(angle)),
			Y:      float32(10 * math.Sin(angle)),
			Sprint: i%4 == 3,
		})
	}
	if p.chat != "" {
		msgs = append(msgs, &Chat{Entity: p.entity, Text: p.chat})
	}
	return append(msgs, &Ping{})
}

func send(ctx context.Context, cfg *config.Config, plan sendPlan, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var received int

	opts := append(connOptions(cfg, newRegistry()), simwire.OnMessageOption(func(m message.Message) error {
		received++
		fmt.Fprintf(out, "<- %v\n", m)
		if _, ok := m.(*Ping); ok {
			return errPong
		}
		return nil
	}))

	conn, err := simwire.Dial(ctx, cfg.Connect, opts...)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(ctx)
	}()

	for _, m := range plan.messages() {
		if err := conn.WriteBlocking(ctx, m); err != nil {
			return errors.Wrapf(err, "send %v", m)
		}
		fmt.Fprintf(out, "-> %v\n", m)

		if _, ok := m.(*Move); ok && plan.interval > 0 {
			select {
			case <-time.After(plan.interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	select {
	case err := <-done:
		if errors.Is(err, errPong) {
			logger.Info("ping returned", "received", received)
			return nil
		}
		return errors.Wrap(err, "connection closed before the ping returned")
	case <-time.After(plan.wait):
		return errors.Errorf("no ping within %s", plan.wait)
	}
}

// errPong stops the client once its own ping has come back.
var errPong = errors.New("pong")
