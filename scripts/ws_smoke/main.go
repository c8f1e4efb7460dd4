package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/vovakirdan/peerlink/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "nickname to announce with hello")
	version := flag.String("version", "1.0", "game version")
	token := flag.String("token", "", "relay ticket, if required")
	room := flag.String("room", "smoke", "room name to create")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(typ string, data any) error {
		in, err := proto.NewInbound(typ, data)
		if err != nil {
			return err
		}
		if err := wsjson.Write(ctx, conn, in); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	hello := proto.HelloData{User: *user, Version: *version, Token: *token, Protocol: proto.ProtocolVersion}
	if err := mustSend(proto.InboundTypeHello, hello); err != nil {
		return err
	}
	if err := mustSend(proto.InboundTypeJoinLobby, nil); err != nil {
		return err
	}
	create := proto.CreateRoomData{Room: *room, MaxPlayers: 4, Visible: true, Open: true}
	if err := mustSend(proto.InboundTypeCreateRoom, create); err != nil {
		return err
	}

	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", outbound.Type)
		if outbound.Event != "" {
			fmt.Printf(" event=%s", outbound.Event)
		}
		fmt.Println()

		if outbound.Error != nil {
			return fmt.Errorf("relay error: %w", outbound.Error)
		}

		switch outbound.Event {
		case proto.EventRoomList:
			var batch proto.RoomListData
			if err := outbound.Decode(&batch); err == nil {
				for _, r := range batch.Rooms {
					fmt.Printf("Room: name=%s players=%d/%d removed=%t\n", r.Name, r.PlayerCount, r.MaxPlayers, r.Removed)
				}
			}
		case proto.EventRoomJoined:
			var snap proto.RoomSnapshot
			if err := outbound.Decode(&snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			fmt.Printf("Joined: room=%s actor=%d master=%d members=%d\n", snap.Room.Name, snap.ActorID, snap.MasterID, len(snap.Members))
			return mustSend(proto.InboundTypeLeaveRoom, nil)
		}
	}
}
