package hands

// Split cuts raw into hands. Every hand starts at a boundary match and runs
// up to the next one, so the boundary line stays at the top of its hand.
// Anything before the first boundary is dropped. A history without any
// boundary yields no hands.
func (p *Patterns) Split(raw string) []string {
	starts := p.boundary.FindAllStringIndex(raw, -1)
	if len(starts) == 0 {
		return nil
	}

	hands := make([]string, 0, len(starts))
	for i, loc := range starts {
		end := len(raw)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		hands = append(hands, raw[loc[0]:end])
	}
	return hands
}

// ExtractID returns the hand id captured from the first identifier match in
// hand, or an empty string when there is none.
func (p *Patterns) ExtractID(hand string) string {
	m := p.id.FindStringSubmatch(hand)
	if m == nil {
		return ""
	}
	return m[p.idGroup]
}
