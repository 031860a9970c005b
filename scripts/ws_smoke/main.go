package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

type peer struct {
	name string
	conn *websocket.Conn
	uid  string
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	password := flag.String("password", "smoke-pass", "password used for both accounts")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	suffix := time.Now().Format("150405")
	alice := &peer{name: "smoke-a-" + suffix}
	bob := &peer{name: "smoke-b-" + suffix}

	for _, p := range []*peer{alice, bob} {
		conn, _, err := websocket.Dial(ctx, *addr, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", p.name, err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		p.conn = conn

		var reg proto.RegisterResponse
		if err := call(ctx, p, proto.TypeRegister, proto.RegisterData{Username: p.name, Password: *password}, &reg); err != nil {
			return err
		}
		if !reg.Success && reg.Code != auth.ErrUserExists.Code {
			return fmt.Errorf("register %s: %s", p.name, reg.Message)
		}

		var login proto.LoginResponse
		if err := call(ctx, p, proto.TypeLogin, proto.LoginData{Username: p.name, Password: *password}, &login); err != nil {
			return err
		}
		if !login.Success {
			return fmt.Errorf("login %s: %s", p.name, login.Message)
		}
		p.uid = login.UID
		fmt.Printf("%s logged in as %s\n", p.name, p.uid)
	}

	if err := write(ctx, alice, proto.TypeFriendRequest, proto.PairData{FromUID: alice.uid, ToUID: bob.uid}); err != nil {
		return err
	}
	if _, err := await(ctx, bob, core.EventFriendRequest); err != nil {
		return err
	}
	fmt.Printf("%s received friend request\n", bob.name)

	if err := write(ctx, bob, proto.TypeAcceptFriendRequest, proto.PairData{FromUID: alice.uid, ToUID: bob.uid}); err != nil {
		return err
	}
	raw, err := await(ctx, alice, core.EventFriendRequestAccepted)
	if err != nil {
		return err
	}
	var accepted core.FriendAcceptedPayload
	if err := json.Unmarshal(raw, &accepted); err != nil {
		return fmt.Errorf("decode accepted: %w", err)
	}
	fmt.Printf("friendship established, chat %s\n", accepted.ChatID)

	if err := write(ctx, alice, proto.TypeChatMessage, proto.ChatMessageData{ChatID: accepted.ChatID, FromUID: alice.uid, Message: "hello from smoke"}); err != nil {
		return err
	}
	raw, err = await(ctx, bob, core.EventChatMessage)
	if err != nil {
		return err
	}
	var msg core.MessagePayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	fmt.Printf("%s received %q (seq %d)\n", bob.name, msg.Message, msg.Seq)
	fmt.Println("smoke ok")
	return nil
}

func write(ctx context.Context, p *peer, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, p.conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		return fmt.Errorf("%s send %s: %w", p.name, typ, err)
	}
	return nil
}

// call sends an inbound event and decodes its response.
func call(ctx context.Context, p *peer, typ string, data, into any) error {
	if err := write(ctx, p, typ, data); err != nil {
		return err
	}
	raw, err := await(ctx, p, proto.ResponseName(typ))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode %s: %w", typ, err)
	}
	return nil
}

// await skips frames until the named event arrives.
func await(ctx context.Context, p *peer, event string) (json.RawMessage, error) {
	for {
		var f frame
		if err := wsjson.Read(ctx, p.conn, &f); err != nil {
			return nil, fmt.Errorf("%s waiting for %s: %w", p.name, event, err)
		}
		if f.Type == proto.OutboundTypeError && f.Error != nil {
			return nil, errors.New(f.Error.Code + ": " + f.Error.Msg)
		}
		if f.Event == event {
			return f.Data, nil
		}
	}
}
