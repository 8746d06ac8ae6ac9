package registry

import (
	"context"

	"github.com/ehrlich-b/kestrel/comms/bbq"
	"github.com/ehrlich-b/kestrel/comms/kchannel"
	"github.com/ehrlich-b/kestrel/comms/oneshot"
)

// Message is an open envelope: a request body plus the address its reply
// must be sent back to. Servers fill it exactly once via ReplyWith.
type Message[Req, Resp any] struct {
	Body    Req
	ReplyTo ReplyAddr[Resp]
}

// Reply is a sealed envelope: the typed outcome of one request.
type Reply[Resp any] struct {
	Body Resp
	Err  error
}

// ReplyWith seals the envelope and delivers it to the requester. Delivery
// failure (requester gone) is returned for the server to log; it is not
// fatal to the server.
func (m *Message[Req, Resp]) ReplyWith(ctx context.Context, body Resp, err error) error {
	return m.ReplyTo.Reply(ctx, Reply[Resp]{Body: body, Err: err})
}

// ReplyAddr is a polymorphic reply address.
type ReplyAddr[Resp any] interface {
	Reply(ctx context.Context, r Reply[Resp]) error
}

// OneshotReply delivers a single reply into a reusable oneshot slot.
type OneshotReply[Resp any] struct {
	Sender *oneshot.Sender[Reply[Resp]]
}

func (o OneshotReply[Resp]) Reply(ctx context.Context, r Reply[Resp]) error {
	return o.Sender.Send(r)
}

// KChannelReply streams replies onto a kernel channel; kernel-only, since
// the channel carries Go values no userspace ring could.
type KChannelReply[Resp any] struct {
	Channel *kchannel.KChannel[Reply[Resp]]
}

func (k KChannelReply[Resp]) Reply(ctx context.Context, r Reply[Resp]) error {
	return k.Channel.Enqueue(ctx, r)
}

// RingReply serializes replies into a userspace-reachable byte ring. The
// encoding is supplied by whoever owns the ring's wire format.
type RingReply[Resp any] struct {
	Producer *bbq.MpscProducer
	Encode   func(Reply[Resp]) []byte
}

func (u RingReply[Resp]) Reply(ctx context.Context, r Reply[Resp]) error {
	payload := u.Encode(r)
	g, err := u.Producer.SendGrantExact(ctx, len(payload))
	if err != nil {
		return err
	}
	copy(g.Buf, payload)
	g.Commit(len(payload))
	return nil
}
