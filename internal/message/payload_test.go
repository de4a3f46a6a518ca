package message_test

import (
	"errors"
	"testing"

	"IndexBridge/internal/message"
	"IndexBridge/internal/protocol"
)

func TestEncodeDecode_RedeemSale(t *testing.T) {
	in := &message.RedeemSale{
		Shares:           100,
		TotalSupply:      1000,
		TargetFund:       "0xfund",
		AssetHomeAddress: "0xasset",
		Receiver:         "0xrecv",
		PurchaseToken:    "0xusd",
		SourceChain:      7,
	}

	data, err := message.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	out, err := message.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := out.(*message.RedeemSale)
	if !ok {
		t.Fatalf("decoded %T, want *RedeemSale", out)
	}
	if *got != *in {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, in)
	}
}

func TestDecode_DispatchesByKind(t *testing.T) {
	data, err := message.Encode(&message.DepositForward{AssetContract: "0xasset"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	out, err := message.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Kind() != message.KindDepositForward {
		t.Errorf("kind %s, want %s", out.Kind(), message.KindDepositForward)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"not json":     []byte("not-json"),
		"unknown kind": []byte(`{"kind":"teleport","body":{}}`),
		"bad body":     []byte(`{"kind":"redeem_sale","body":"nope"}`),
	}
	for name, data := range cases {
		if _, err := message.Decode(data); !errors.Is(err, protocol.ErrMalformedMessage) {
			t.Errorf("%s: expected ErrMalformedMessage, got %v", name, err)
		}
	}
}
