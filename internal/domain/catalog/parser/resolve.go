package parser

// Resolve returns the first non-empty value among candidates, in order.
// Each candidate is tried as written, then in normalized form, before moving
// on. ok is false when nothing matched; callers supply their own default.
func Resolve(rec Record, candidates ...string) (value string, ok bool) {
	for _, c := range candidates {
		if v, found := rec.fields[c]; found && v != "" {
			return v, true
		}
		if v, found := rec.fields[NormalizeHeader(c)]; found && v != "" {
			return v, true
		}
	}
	return "", false
}

// ResolveOr is Resolve with a fallback.
func ResolveOr(rec Record, fallback string, candidates ...string) string {
	if v, ok := Resolve(rec, candidates...); ok {
		return v
	}
	return fallback
}
