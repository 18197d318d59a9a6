package protocol

import (
	"errors"
	"testing"

	"github.com/dmarkelov/notesync/internal/codec"
	"github.com/dmarkelov/notesync/internal/common"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeFileMeta, "device-2", FileMeta{
		Path:  "notes/test1.md",
		Hash:  "ab12",
		Mtime: 1700000000000,
		Size:  9,
	})
	if err != nil {
		t.Fatalf("NewEnvelope error: %v", err)
	}
	env.From = "device-1"

	frame, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	got, err := DecodeEnvelope(frame)
	if err != nil {
		t.Fatalf("DecodeEnvelope error: %v", err)
	}
	if got.Type != TypeFileMeta || got.From != "device-1" || got.To != "device-2" {
		t.Fatalf("unexpected envelope: %+v", got)
	}

	var meta FileMeta
	if err := got.DecodePayload(&meta); err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}
	if meta.Path != "notes/test1.md" || meta.Size != 9 {
		t.Fatalf("unexpected payload: %+v", meta)
	}
}

func TestDecodeEnvelope_UnknownType(t *testing.T) {
	frame, err := codec.Marshal(Envelope{Type: "subscribe"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if _, err := DecodeEnvelope(frame); !errors.Is(err, common.ErrProtocol) {
		t.Fatalf("want ErrProtocol for unknown tag, got %v", err)
	}
}

func TestDecodeEnvelope_MalformedFrame(t *testing.T) {
	if _, err := DecodeEnvelope([]byte{0xff, 0x00, 0x01}); !errors.Is(err, common.ErrProtocol) {
		t.Fatalf("want ErrProtocol for garbage frame, got %v", err)
	}
}

func TestDecodePayload_Mismatch(t *testing.T) {
	env, err := NewEnvelope(TypePing, "", Ping{Timestamp: 42})
	if err != nil {
		t.Fatalf("NewEnvelope error: %v", err)
	}

	var meta FileMeta
	// A ping payload decoded as FileMeta simply leaves the fields
	// zeroed; decoding into an incompatible shape must not panic.
	if err := env.DecodePayload(&meta); err == nil && meta.Path != "" {
		t.Fatalf("unexpected payload content: %+v", meta)
	}
}
