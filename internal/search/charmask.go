package search

// charMask sets one bit per character class present in a lowercase
// string: a-z, 0-9, a few separators and one bucket for everything else.
// It only ever serves as an opt-in fast reject; ranking never reads it.
func charMask(lower string) uint64 {
	var m uint64
	for i := 0; i < len(lower); i++ {
		m |= charBit(lower[i])
	}
	return m
}

func charBit(c byte) uint64 {
	switch {
	case c >= 'a' && c <= 'z':
		return 1 << (c - 'a')
	case c >= 'A' && c <= 'Z':
		return 1 << (c - 'A')
	case c >= '0' && c <= '9':
		return 1 << (26 + c - '0')
	case c == '_':
		return 1 << 36
	case c == '-':
		return 1 << 37
	case c == '.':
		return 1 << 38
	case c == '/':
		return 1 << 39
	case c == ' ':
		return 1 << 40
	default:
		return 1 << 41
	}
}

// maskRejects reports whether the candidate lacks a character class the
// query needs.
func maskRejects(query, candidate uint64) bool {
	return query&^candidate != 0
}
