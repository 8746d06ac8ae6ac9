package registry

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/ehrlich-b/kestrel/comms/bbq"
	"github.com/ehrlich-b/kestrel/comms/kchannel"
)

func TestKChannelReplyStreams(t *testing.T) {
	ctx := context.Background()
	replies := kchannel.New[Reply[pingResp]](4, nil)

	msg := Message[pingReq, pingResp]{
		Body:    pingReq{N: 1},
		ReplyTo: KChannelReply[pingResp]{Channel: replies},
	}

	// A kernel channel address accepts a stream of replies.
	for i := 0; i < 3; i++ {
		if err := msg.ReplyWith(ctx, pingResp{N: i}, nil); err != nil {
			t.Fatalf("ReplyWith %d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		rep, err := replies.Dequeue(ctx)
		if err != nil || rep.Body.N != i {
			t.Errorf("reply %d = (%+v, %v)", i, rep, err)
		}
	}
}

func TestRingReplySerializes(t *testing.T) {
	ctx := context.Background()
	prod, cons := bbq.NewSPSC(64, nil)
	mpsc := prod.IntoMpsc()

	encode := func(r Reply[pingResp]) []byte {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(r.Body.N))
		return buf
	}

	msg := Message[pingReq, pingResp]{
		Body:    pingReq{N: 9},
		ReplyTo: RingReply[pingResp]{Producer: mpsc, Encode: encode},
	}
	if err := msg.ReplyWith(ctx, pingResp{N: 0xABCD}, nil); err != nil {
		t.Fatal(err)
	}

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	g, err := cons.ReadGrant(rctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Buf) != 4 || binary.LittleEndian.Uint32(g.Buf) != 0xABCD {
		t.Errorf("ring payload = %v", g.Buf)
	}
	g.Release(len(g.Buf))
}
