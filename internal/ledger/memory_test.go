package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestBusDeliversToAllMembersIncludingSender(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	first := bus.Join()
	second := bus.Join()

	sender := common.HexToAddress("0x01")
	payload := NewPayload("p1", "r1", sender, KindRandomness, "abc")
	if err := first.Broadcast(context.Background(), payload); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	for i, relay := range []Relay{first, second} {
		select {
		case got := <-relay.Deliveries():
			if got.ID != payload.ID || got.Value != "abc" {
				t.Fatalf("member %d received wrong payload: %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("member %d did not receive the payload", i)
		}
	}
}

func TestBusClosedMemberDoesNotBlockBroadcast(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	first := bus.Join()
	second := bus.Join()
	_ = second.Close()

	payload := NewPayload("p1", "r1", common.HexToAddress("0x01"), KindReset, "")
	if err := first.Broadcast(context.Background(), payload); err != nil {
		t.Fatalf("broadcast after member close: %v", err)
	}

	select {
	case <-first.Deliveries():
	case <-time.After(time.Second):
		t.Fatalf("open member did not receive the payload")
	}
}

func TestPayloadEncodeDecode(t *testing.T) {
	payload := NewPayload("p1", "r1", common.HexToAddress("0xabc"), KindSignature, "0xdeadbeef")
	data, err := payload.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodePayload(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != payload.ID || decoded.Sender != payload.Sender ||
		decoded.Kind != payload.Kind || decoded.Value != payload.Value {
		t.Fatalf("decoded payload differs: %+v vs %+v", decoded, payload)
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	if _, err := DecodePayload([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
