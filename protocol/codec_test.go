package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeEnvelopeSmallLength(t *testing.T) {
	hdr := EncodeEnvelope(100, false, false)
	if len(hdr) != 2 {
		t.Fatalf("expected a 1-byte flag + 1-byte varint for length 100, got %d bytes", len(hdr))
	}
	consumed, length, compressed, batched, err := DecodeEnvelope(hdr)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if consumed != len(hdr) || length != 100 || compressed || batched {
		t.Fatalf("got consumed=%d length=%d compressed=%v batched=%v", consumed, length, compressed, batched)
	}
}

func TestEncodeDecodeEnvelopeLargeLength(t *testing.T) {
	const big = 1 << 20
	hdr := EncodeEnvelope(big, true, false)
	consumed, length, compressed, batched, err := DecodeEnvelope(hdr)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if consumed != len(hdr) || length != big || !compressed || batched {
		t.Fatalf("got consumed=%d length=%d compressed=%v batched=%v", consumed, length, compressed, batched)
	}
}

func TestBatchedImpliesCompressed(t *testing.T) {
	hdr := EncodeEnvelope(10, false, true)
	_, _, compressed, batched, err := DecodeEnvelope(hdr)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if !batched || !compressed {
		t.Fatalf("batched=%v compressed=%v, want both true", batched, compressed)
	}
}

func TestDecodeEnvelopeRejectsBatchedWithoutCompressed(t *testing.T) {
	hdr := []byte{flagBatched, 5}
	if _, _, _, _, err := DecodeEnvelope(hdr); err == nil {
		t.Fatalf("expected an error decoding a batched envelope with the compressed bit unset")
	}
}

func TestDecodeEnvelopeWaitsOnIncompleteVarint(t *testing.T) {
	hdr := []byte{flagCompressed} // flag byte present, varint length byte missing
	consumed, _, _, _, err := DecodeEnvelope(hdr)
	if err == nil || consumed != 0 {
		t.Fatalf("expected a wait-for-more-bytes error with consumed=0, got consumed=%d err=%v", consumed, err)
	}
}

func TestEncodeSingleParseRoundTrip(t *testing.T) {
	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	prs, err := NewParser()
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}

	for _, compressed := range []bool{false, true} {
		frame, err := enc.EncodeSingle(42, []byte("hello world"), compressed)
		if err != nil {
			t.Fatalf("EncodeSingle: %v", err)
		}

		var gotAPI uint16
		var gotMsg []byte
		consumed, err := prs.Parse(frame, func(api uint16, msg []byte) error {
			gotAPI = api
			gotMsg = append([]byte(nil), msg...)
			return nil
		})
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if consumed != len(frame) {
			t.Fatalf("consumed=%d, want %d", consumed, len(frame))
		}
		if gotAPI != 42 || !bytes.Equal(gotMsg, []byte("hello world")) {
			t.Fatalf("got api=%d msg=%q", gotAPI, gotMsg)
		}
	}
}

func TestParseIncompleteFrameConsumesNothing(t *testing.T) {
	enc, _ := NewEncoder()
	prs, _ := NewParser()
	frame, _ := enc.EncodeSingle(1, []byte("partial-payload"), false)

	consumed, err := prs.Parse(frame[:len(frame)-2], func(uint16, []byte) error {
		t.Fatalf("onMessage should not fire on a truncated frame")
		return nil
	})
	if err != nil {
		t.Fatalf("Parse on truncated frame returned an error instead of waiting for more bytes: %v", err)
	}
	if consumed != 0 {
		t.Fatalf("consumed=%d, want 0 for an incomplete frame", consumed)
	}
}

func TestEncodeBatchRoundTrip(t *testing.T) {
	enc, _ := NewEncoder()
	prs, _ := NewParser()

	items := []BatchItem{
		{Api: 1, Payload: []byte("first")},
		{Api: 2, Payload: []byte("second")},
		{Api: 3, Payload: nil},
	}
	frame, err := enc.EncodeBatch(items)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}

	var got []BatchItem
	consumed, err := prs.Parse(frame, func(api uint16, msg []byte) error {
		got = append(got, BatchItem{Api: api, Payload: append([]byte(nil), msg...)})
		return nil
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if consumed != len(frame) {
		t.Fatalf("consumed=%d, want %d", consumed, len(frame))
	}
	if len(got) != len(items) {
		t.Fatalf("got %d messages, want %d", len(got), len(items))
	}
	for i, want := range items {
		if got[i].Api != want.Api || !bytes.Equal(got[i].Payload, want.Payload) {
			t.Fatalf("item %d: got %+v, want %+v", i, got[i], want)
		}
	}
}
