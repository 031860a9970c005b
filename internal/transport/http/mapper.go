package http

import (
	stdhttp "net/http"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/service/friends"
	"github.com/vovakirdan/wirechat-relay/internal/service/messages"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const msgInternal = "internal error"

// protocolError builds an event rendered as an envelope-level error rather than
// a named event. Used for frames that cannot be attributed to a known request.
func protocolError(code, msg string) *core.Event {
	return &core.Event{Payload: &proto.Error{Code: code, Msg: msg}}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	if perr, ok := event.Payload.(*proto.Error); ok && event.Name == "" {
		return proto.Outbound{Type: proto.OutboundTypeError, Error: perr}
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: event.Name,
		Data:  event.Payload,
	}
}

// failure reduces any error to the code and message shown to clients.
// The bool reports whether err was an expected domain error.
func failure(err error) (code, msg string, known bool) {
	if ce, ok := core.AsCoreError(err); ok {
		return ce.Code, ce.Message, true
	}
	return core.ErrCodeInternal, msgInternal, false
}

func httpStatus(err error) int {
	ce, ok := core.AsCoreError(err)
	if !ok {
		return stdhttp.StatusInternalServerError
	}
	switch ce.Kind {
	case core.KindValidation:
		if ce.Code == core.ErrCodeRateLimited {
			return stdhttp.StatusTooManyRequests
		}
		return stdhttp.StatusBadRequest
	case core.KindNotFound:
		return stdhttp.StatusNotFound
	case core.KindConflict:
		return stdhttp.StatusConflict
	case core.KindForbidden:
		return stdhttp.StatusForbidden
	case core.KindUnauthenticated:
		return stdhttp.StatusUnauthorized
	default:
		return stdhttp.StatusInternalServerError
	}
}

func userInfos(list []friends.Friend) []proto.UserInfo {
	out := make([]proto.UserInfo, 0, len(list))
	for _, f := range list {
		out = append(out, proto.UserInfo{UID: f.UID, Nickname: f.Nickname, Online: f.Online})
	}
	return out
}

func groupInfos(list []*store.GroupChat) []proto.GroupInfo {
	out := make([]proto.GroupInfo, 0, len(list))
	for _, g := range list {
		out = append(out, proto.GroupInfo{
			ChatID:   g.ChatID,
			GroupID:  g.GroupID,
			Name:     g.Name,
			AdminUID: g.AdminUID,
		})
	}
	return out
}

func messagePayloads(list []*store.Message) []core.MessagePayload {
	out := make([]core.MessagePayload, 0, len(list))
	for _, m := range list {
		out = append(out, messages.Payload(m))
	}
	return out
}

func chatListEntries(list []messages.ChatEntry) []proto.ChatListEntry {
	out := make([]proto.ChatListEntry, 0, len(list))
	for _, e := range list {
		entry := proto.ChatListEntry{
			ChatID: e.ChatID,
			Type:   string(e.Kind),
			Name:   e.Name,
		}
		if e.LastMessage != nil {
			p := messages.Payload(e.LastMessage)
			entry.LastMessage = &p
		}
		out = append(out, entry)
	}
	return out
}
