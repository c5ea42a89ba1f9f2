package ot

import "testing"

func TestTransformInsertInsert(t *testing.T) {
	tests := []struct {
		name string
		a    Operation
		b    Operation
		want Operation
	}{
		{
			name: "b before a shifts right",
			a:    Insert(5, "x", 1),
			b:    Insert(2, "ab", 1),
			want: Insert(7, "x", 1),
		},
		{
			name: "b after a unchanged",
			a:    Insert(2, "x", 1),
			b:    Insert(5, "ab", 1),
			want: Insert(2, "x", 1),
		},
		{
			name: "equal position tie goes to b",
			a:    Insert(3, "x", 1),
			b:    Insert(3, "yz", 1),
			want: Insert(5, "x", 1),
		},
		{
			name: "concurrent inserts at same point",
			a:    Insert(1, "X", 1),
			b:    Insert(1, "B", 1),
			want: Insert(2, "X", 1),
		},
		{
			name: "shift counts utf16 units",
			a:    Insert(4, "x", 1),
			b:    Insert(0, "\U0001F600", 1),
			want: Insert(6, "x", 1),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transform(tt.a, tt.b); got != tt.want {
				t.Errorf("Transform() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTransformInsertDelete(t *testing.T) {
	tests := []struct {
		name string
		a    Operation
		b    Operation
		want Operation
	}{
		{
			name: "delete entirely before shifts left",
			a:    Insert(6, "x", 1),
			b:    Delete(1, 3, 1),
			want: Insert(3, "x", 1),
		},
		{
			name: "delete ending at insert position shifts left",
			a:    Insert(4, "X", 1),
			b:    Delete(1, 3, 1),
			want: Insert(1, "X", 1),
		},
		{
			name: "insert inside deleted range moves to delete start",
			a:    Insert(3, "x", 1),
			b:    Delete(2, 4, 1),
			want: Insert(2, "x", 1),
		},
		{
			name: "delete after insert unchanged",
			a:    Insert(1, "x", 1),
			b:    Delete(4, 2, 1),
			want: Insert(1, "x", 1),
		},
		{
			name: "delete starting at insert position unchanged",
			a:    Insert(2, "x", 1),
			b:    Delete(2, 3, 1),
			want: Insert(2, "x", 1),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transform(tt.a, tt.b); got != tt.want {
				t.Errorf("Transform() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTransformDeleteInsert(t *testing.T) {
	tests := []struct {
		name string
		a    Operation
		b    Operation
		want Operation
	}{
		{
			name: "insert before shifts right",
			a:    Delete(3, 2, 1),
			b:    Insert(1, "ab", 1),
			want: Delete(5, 2, 1),
		},
		{
			name: "insert at delete start shifts right",
			a:    Delete(3, 2, 1),
			b:    Insert(3, "a", 1),
			want: Delete(4, 2, 1),
		},
		{
			name: "insert inside delete range does not expand it",
			a:    Delete(2, 4, 1),
			b:    Insert(4, "ab", 1),
			want: Delete(2, 4, 1),
		},
		{
			name: "insert after delete unchanged",
			a:    Delete(1, 2, 1),
			b:    Insert(5, "x", 1),
			want: Delete(1, 2, 1),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transform(tt.a, tt.b); got != tt.want {
				t.Errorf("Transform() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTransformDeleteDelete(t *testing.T) {
	tests := []struct {
		name string
		a    Operation
		b    Operation
		want Operation
	}{
		{
			name: "b entirely after unchanged",
			a:    Delete(1, 2, 1),
			b:    Delete(5, 3, 1),
			want: Delete(1, 2, 1),
		},
		{
			name: "b entirely before shifts left",
			a:    Delete(5, 2, 1),
			b:    Delete(1, 3, 1),
			want: Delete(2, 2, 1),
		},
		{
			name: "partial overlap trims and reanchors",
			a:    Delete(3, 4, 1),
			b:    Delete(1, 4, 1),
			want: Delete(1, 2, 1),
		},
		{
			name: "overlap on the right trims length only",
			a:    Delete(1, 4, 1),
			b:    Delete(3, 4, 1),
			want: Delete(1, 2, 1),
		},
		{
			name: "a contained in b collapses to noop",
			a:    Delete(2, 2, 1),
			b:    Delete(1, 3, 1),
			want: Noop(),
		},
		{
			name: "identical ranges collapse to noop",
			a:    Delete(2, 3, 1),
			b:    Delete(2, 3, 1),
			want: Noop(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transform(tt.a, tt.b); got != tt.want {
				t.Errorf("Transform() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTransformNoopIdentity(t *testing.T) {
	ops := []Operation{
		Insert(3, "abc", 2),
		Delete(0, 5, 7),
		Noop(),
	}
	for _, op := range ops {
		if got := Transform(op, Noop()); got != op {
			t.Errorf("Transform(op, noop) = %+v, want %+v", got, op)
		}
	}
	if got := Transform(Noop(), Insert(0, "x", 1)); !got.IsNoop() {
		t.Errorf("Transform(noop, op) = %+v, want noop", got)
	}
}

// The folded pair must reproduce the documented concurrent-edit outcomes.
func TestTransformScenarios(t *testing.T) {
	t.Run("concurrent inserts at position 1", func(t *testing.T) {
		accepted := Insert(1, "B", 1)
		late := Insert(1, "X", 1)
		got := Transform(late, accepted)
		if got.Position != 2 {
			t.Errorf("Transform() position = %d, want 2", got.Position)
		}
		if s := Apply(Apply("AC", accepted), got); s != "ABXC" {
			t.Errorf("converged content = %q, want %q", s, "ABXC")
		}
	})

	t.Run("insert shifted left by accepted delete", func(t *testing.T) {
		accepted := Delete(1, 3, 1)
		late := Insert(4, "X", 1)
		got := Transform(late, accepted)
		if got.Position != 1 {
			t.Errorf("Transform() position = %d, want 1", got.Position)
		}
		if s := Apply(Apply("HELLO", accepted), got); s != "HXO" {
			t.Errorf("converged content = %q, want %q", s, "HXO")
		}
	})

	t.Run("overlapping deletes collapse", func(t *testing.T) {
		accepted := Delete(1, 3, 1)
		late := Delete(2, 2, 1)
		got := Transform(late, accepted)
		if !got.IsNoop() {
			t.Errorf("Transform() = %+v, want noop", got)
		}
		if s := Apply(Apply("ABCDE", accepted), got); s != "AE" {
			t.Errorf("converged content = %q, want %q", s, "AE")
		}
	})
}
