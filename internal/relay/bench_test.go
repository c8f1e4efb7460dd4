package relay

import (
	"context"
	"fmt"
	"testing"

	"github.com/vovakirdan/peerlink/internal/proto"
)

func benchmarkStateRelay(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, nil, nil)
	go hub.Run(ctx)

	join := func(c *Client, kind CommandKind) {
		_ = hub.RegisterClient(c)
		c.Commands <- &Command{Kind: CommandHello, Hello: proto.HelloData{User: c.ID, Version: "bench"}}
		c.Commands <- &Command{Kind: kind, Room: proto.CreateRoomData{Room: "bench", Open: true, Visible: true}}
		for ev := range c.Events {
			if ev.Kind == EventRoomJoined {
				return
			}
		}
	}

	sender := NewClient("sender")
	join(sender, CommandCreateRoom)

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient(fmt.Sprintf("c%d", i))
		join(c, CommandJoinRoom)
		clients = append(clients, c)
	}
	go func() {
		for range sender.Events {
		}
	}()

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{Kind: CommandState, State: proto.StateData{Entity: 1001, Seq: uint64(i)}}
		for ev := range target.Events {
			if ev.Kind == EventState {
				break
			}
		}
	}
}

func BenchmarkStateRelay_10(b *testing.B)  { benchmarkStateRelay(b, 10) }
func BenchmarkStateRelay_100(b *testing.B) { benchmarkStateRelay(b, 100) }
