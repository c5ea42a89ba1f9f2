package ot

// Transform returns a adjusted to apply after b, assuming a and b were
// produced against the same base state. b is the operation the server
// accepted first; on an equal-position insert tie b wins and shifts a
// right, which keeps every replica's transform deterministic.
func Transform(a, b Operation) Operation {
	if a.IsNoop() || b.IsNoop() {
		return a
	}

	switch {
	case a.Type == TypeInsert && b.Type == TypeInsert:
		if b.Position <= a.Position {
			a.Position += Width(b.Text)
		}

	case a.Type == TypeInsert && b.Type == TypeDelete:
		switch {
		case b.end() <= a.Position:
			a.Position -= b.Length
		case b.Position < a.Position:
			// Insert fell inside the deleted range; it survives at the
			// point of deletion.
			a.Position = b.Position
		}

	case a.Type == TypeDelete && b.Type == TypeInsert:
		// An insert at or before the delete start shifts the whole range.
		// An insert inside the range does not grow it; deletes never expand.
		if b.Position <= a.Position {
			a.Position += Width(b.Text)
		}

	case a.Type == TypeDelete && b.Type == TypeDelete:
		switch {
		case b.Position >= a.end():
			// Disjoint, b entirely after a.
		case b.end() <= a.Position:
			a.Position -= b.Length
		default:
			overlap := min(a.end(), b.end()) - max(a.Position, b.Position)
			a.Length -= overlap
			a.Position = min(a.Position, b.Position)
			if a.Length <= 0 {
				return Noop()
			}
		}
	}
	return a
}
