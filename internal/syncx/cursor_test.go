package syncx

import (
	"testing"

	"github.com/google/uuid"
)

func TestEncodeCursor(t *testing.T) {
	tests := []struct {
		name   string
		cursor Cursor
		want   string
	}{
		{
			name: "listing position",
			cursor: Cursor{
				Ms:  1756000000000,
				UID: uuid.MustParse("7f1c2a44-9d3e-4b1a-8c5f-2e6d7a8b9c0d"),
			},
			want: "MTc1NjAwMDAwMDAwMHw3ZjFjMmE0NC05ZDNlLTRiMWEtOGM1Zi0yZTZkN2E4YjljMGQ",
		},
		{
			name:   "zero value encodes empty",
			cursor: Cursor{},
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeCursor(tt.cursor); got != tt.want {
				t.Errorf("EncodeCursor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeCursor(t *testing.T) {
	tests := []struct {
		name      string
		encoded   string
		want      Cursor
		wantValid bool
	}{
		{
			name:    "valid cursor",
			encoded: "MTc1NjAwMDAwMDAwMHw3ZjFjMmE0NC05ZDNlLTRiMWEtOGM1Zi0yZTZkN2E4YjljMGQ",
			want: Cursor{
				Ms:  1756000000000,
				UID: uuid.MustParse("7f1c2a44-9d3e-4b1a-8c5f-2e6d7a8b9c0d"),
			},
			wantValid: true,
		},
		{name: "empty string", encoded: ""},
		{name: "not base64", encoded: "%%%"},
		{name: "no separator", encoded: "MTIzNDU2Nzg5MA"},
		{name: "bad timestamp", encoded: "YWJjfDdmMWMyYTQ0LTlkM2UtNGIxYS04YzVmLTJlNmQ3YThiOWMwZA"},
		{name: "bad uuid", encoded: "MTIzNDU2fG5vdC1hLXV1aWQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, valid := DecodeCursor(tt.encoded)
			if valid != tt.wantValid {
				t.Fatalf("DecodeCursor() valid = %v, want %v", valid, tt.wantValid)
			}
			if valid && got != tt.want {
				t.Errorf("DecodeCursor() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{Ms: 1756000000321, UID: uuid.New()}

	decoded, valid := DecodeCursor(EncodeCursor(original))
	if !valid {
		t.Fatal("DecodeCursor() rejected a cursor produced by EncodeCursor()")
	}
	if decoded != original {
		t.Errorf("round trip = %+v, want %+v", decoded, original)
	}
}
