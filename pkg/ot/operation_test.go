package ot

import (
	"encoding/json"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		wantErr bool
	}{
		{"valid insert", Insert(0, "a", 1), false},
		{"valid delete", Delete(3, 2, 5), false},
		{"insert empty text", Insert(0, "", 1), true},
		{"insert negative position", Insert(-1, "a", 1), true},
		{"delete zero length", Delete(0, 0, 1), true},
		{"delete negative position", Delete(-2, 1, 1), true},
		{"missing base version", Insert(0, "a", 0), true},
		{"noop from a client", Noop(), true},
		{"unknown type", Operation{Type: "retain", Position: 1, BaseVersion: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOperationWireShape(t *testing.T) {
	ins, err := json.Marshal(Insert(1, "B", 1))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(ins), `{"type":"insert","position":1,"text":"B","baseVersion":1}`; got != want {
		t.Errorf("insert json = %s, want %s", got, want)
	}

	del, err := json.Marshal(Delete(1, 3, 2))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(del), `{"type":"delete","position":1,"length":3,"baseVersion":2}`; got != want {
		t.Errorf("delete json = %s, want %s", got, want)
	}

	var round Operation
	if err := json.Unmarshal(del, &round); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if round != Delete(1, 3, 2) {
		t.Errorf("round trip = %+v, want %+v", round, Delete(1, 3, 2))
	}
}
