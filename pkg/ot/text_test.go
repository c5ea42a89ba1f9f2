package ot

import "testing"

func TestWidth(t *testing.T) {
	tests := []struct {
		name string
		s    string
		want int
	}{
		{"empty", "", 0},
		{"ascii", "hello", 5},
		{"bmp", "héllo", 5},
		{"supplementary pair counts twice", "\U0001F600", 2},
		{"mixed", "a\U0001F600b", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Width(tt.s); got != tt.want {
				t.Errorf("Width(%q) = %d, want %d", tt.s, got, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		content string
		op      Operation
		want    string
	}{
		{"insert middle", "AC", Insert(1, "B", 1), "ABC"},
		{"insert start", "BC", Insert(0, "A", 1), "ABC"},
		{"insert end", "AB", Insert(2, "C", 1), "ABC"},
		{"insert clamps past end", "AB", Insert(99, "C", 1), "ABC"},
		{"insert clamps negative", "BC", Insert(-3, "A", 1), "ABC"},
		{"insert after surrogate pair", "\U0001F600b", Insert(2, "a", 1), "\U0001F600ab"},
		{"delete middle", "HELLO", Delete(1, 3, 1), "HO"},
		{"delete clamps past end", "HELLO", Delete(3, 99, 1), "HEL"},
		{"delete whole", "HELLO", Delete(0, 5, 1), ""},
		{"delete surrogate pair", "a\U0001F600b", Delete(1, 2, 1), "ab"},
		{"noop unchanged", "HELLO", Noop(), "HELLO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Apply(tt.content, tt.op); got != tt.want {
				t.Errorf("Apply(%q, %+v) = %q, want %q", tt.content, tt.op, got, tt.want)
			}
		})
	}
}

// Accepted operations change the length by exactly the inserted width or
// the effective deleted length.
func TestApplyLengthArithmetic(t *testing.T) {
	content := "ABCDE"

	ins := Insert(2, "xy\U0001F600", 1)
	if got, want := Width(Apply(content, ins)), Width(content)+Width(ins.Text); got != want {
		t.Errorf("insert result width = %d, want %d", got, want)
	}

	del := Delete(3, 99, 1)
	if got, want := Width(Apply(content, del)), Width(content)-2; got != want {
		t.Errorf("delete result width = %d, want %d", got, want)
	}
}
