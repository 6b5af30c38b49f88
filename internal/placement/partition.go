package placement

// Span is a contiguous half-open range [Start, Start+Len).
type Span struct {
	Start int
	Len   int
}

// End returns the first index past the span.
func (s Span) End() int { return s.Start + s.Len }

// Partition1D splits total items into parts contiguous spans and returns
// span part. The first total%parts spans carry one extra item, so sizes
// differ by at most one. Out-of-range parts yield an empty span at total.
func Partition1D(total, parts, part int) Span {
	if total < 0 {
		total = 0
	}
	if parts < 1 || part < 0 || part >= parts {
		return Span{Start: total}
	}
	base, rem := total/parts, total%parts
	s := Span{Start: part*base + min(part, rem), Len: base}
	if part < rem {
		s.Len++
	}
	return s
}
