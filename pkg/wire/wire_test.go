package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/inklet-dev/inklet/pkg/ot"
)

func TestDecodeClient(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    any
		wantErr error
	}{
		{
			name:  "join",
			frame: `{"event":"join_document","documentId":"d1"}`,
			want:  NewJoinDocument("d1"),
		},
		{
			name:  "leave",
			frame: `{"event":"leave_document"}`,
			want:  NewLeaveDocument(),
		},
		{
			name:  "operation",
			frame: `{"event":"operation","operation":{"type":"insert","position":1,"text":"B","baseVersion":1}}`,
			want:  NewOperation(ot.Insert(1, "B", 1)),
		},
		{
			name:  "cursor",
			frame: `{"event":"cursor_move","cursor":{"position":4}}`,
			want:  NewCursorMove(Cursor{Position: 4}),
		},
		{
			name:    "unknown event",
			frame:   `{"event":"shout"}`,
			wantErr: ErrUnknownEvent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClient([]byte(tt.frame))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeClient() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeClient() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeClient() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeClientMalformed(t *testing.T) {
	if _, err := DecodeClient([]byte(`{`)); err == nil {
		t.Error("DecodeClient() error = nil, want parse error")
	}
}

func TestSealRoundTrip(t *testing.T) {
	ack := NewOperationAck(ot.Insert(2, "X", 1), 3, "u2")
	raw, err := Seal("srv-a", EventOperationAck, ack)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if env.ServerID != "srv-a" || env.Event != EventOperationAck {
		t.Errorf("envelope = %+v, want serverId srv-a event %s", env, EventOperationAck)
	}

	var inner OperationAck
	if err := json.Unmarshal(env.Payload, &inner); err != nil {
		t.Fatalf("Unmarshal(payload) error = %v", err)
	}
	if inner != ack {
		t.Errorf("payload = %+v, want %+v", inner, ack)
	}
}
