package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

const help = `commands:
  /chat <chatId>        send plain lines to a private chat
  /group <chatId>       send plain lines to a group chat
  /friend <nickname>    send a friend request
  /accept <uid>         accept a friend request from uid
  /chats                list chats
  /friends              list friends
  /history              fetch history of the current chat`

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	password := flag.String("password", "cli-pass", "password")
	register := flag.Bool("register", false, "register the account before login")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c := &client{conn: conn, uid: make(chan string, 1)}
	if *register {
		if err := c.send(ctx, proto.TypeRegister, proto.RegisterData{Username: *user, Password: *password}); err != nil {
			return err
		}
	}
	if err := c.send(ctx, proto.TypeLogin, proto.LoginData{Username: *user, Password: *password}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *user)
	fmt.Println(help)

	go func() {
		defer cancel()
		c.readLoop(ctx)
	}()

	c.writeLoop(ctx)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

type client struct {
	conn *websocket.Conn
	// uid is set by the reader once loginResponse arrives.
	uid   chan string
	self  string
	chat  string
	group bool
}

func (c *client) send(ctx context.Context, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func (c *client) readLoop(ctx context.Context) {
	for {
		var f frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			case websocket.StatusPolicyViolation:
				fmt.Println("session taken over by another connection")
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if f.Type == proto.OutboundTypeError && f.Error != nil {
			fmt.Printf("! %s: %s\n", f.Error.Code, f.Error.Msg)
			continue
		}

		switch f.Event {
		case proto.ResponseName(proto.TypeLogin):
			var resp proto.LoginResponse
			if err := json.Unmarshal(f.Data, &resp); err != nil {
				log.Printf("decode login: %v", err)
				continue
			}
			if !resp.Success {
				fmt.Printf("! login failed: %s\n", resp.Message)
				continue
			}
			c.uid <- resp.UID
			fmt.Printf("logged in, uid %s\n", resp.UID)
		case core.EventChatMessage, core.EventGroupMessage:
			var msg core.MessagePayload
			if err := json.Unmarshal(f.Data, &msg); err != nil {
				log.Printf("decode message: %v", err)
				continue
			}
			if msg.FromUID == "" {
				fmt.Printf("[%s] * %s\n", msg.ChatID, msg.Message)
				continue
			}
			fmt.Printf("[%s] %s: %s\n", msg.ChatID, msg.Nickname, msg.Message)
		case core.EventFriendRequest:
			var req core.FriendRequestPayload
			if err := json.Unmarshal(f.Data, &req); err != nil {
				log.Printf("decode friend request: %v", err)
				continue
			}
			fmt.Printf("friend request from %s (/accept %s)\n", req.FromNickname, req.FromUID)
		default:
			fmt.Printf("%s %s\n", f.Event, string(f.Data))
		}
	}
}

func (c *client) writeLoop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case uid := <-c.uid:
			c.self = uid
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := c.handleLine(ctx, text); err != nil {
				log.Printf("%v", err)
				return
			}
		}
	}
}

func (c *client) handleLine(ctx context.Context, text string) error {
	if !strings.HasPrefix(text, "/") {
		if c.chat == "" {
			fmt.Println("no chat selected, use /chat or /group")
			return nil
		}
		data := proto.ChatMessageData{ChatID: c.chat, FromUID: c.self, Message: text}
		if c.group {
			return c.send(ctx, proto.TypeGroupMessage, data)
		}
		return c.send(ctx, proto.TypeChatMessage, data)
	}

	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/chat", "/group":
		c.chat = arg
		c.group = cmd == "/group"
		return nil
	case "/friend":
		return c.send(ctx, proto.TypeFriendRequestByNickname, proto.FriendRequestByNicknameData{FromUID: c.self, Nickname: arg})
	case "/accept":
		return c.send(ctx, proto.TypeAcceptFriendRequest, proto.PairData{FromUID: arg, ToUID: c.self})
	case "/chats":
		return c.send(ctx, proto.TypeGetChatList, proto.UIDData{UID: c.self})
	case "/friends":
		return c.send(ctx, proto.TypeGetFriendList, proto.UIDData{UID: c.self})
	case "/history":
		return c.send(ctx, proto.TypeGetChatHistory, proto.ChatHistoryData{ChatID: c.chat})
	default:
		fmt.Println(help)
		return nil
	}
}
