// Package dimensions parses the two dimension encodings accepted on bucket
// entries: a bracket suffix on the metric name ("name[k1=v1,k2=v2]") and
// escaped key=value tag strings ("k\=ey=value").
package dimensions

import "strings"

// Parse returns the canonical metric name and the dimensions carried by an
// entry. When rawTags is non-empty the tag encoding applies and rawName is
// returned unchanged; otherwise the bracket suffix of rawName is parsed.
func Parse(rawName string, rawTags []string) (string, map[string]string) {
	dims := make(map[string]string)
	name := ParseInto(dims, rawName, rawTags)
	return name, dims
}

// ParseInto is Parse writing into a caller-supplied map, which may be
// pre-seeded. Later keys overwrite earlier ones.
func ParseInto(dims map[string]string, rawName string, rawTags []string) string {
	if len(rawTags) > 0 {
		for _, tag := range rawTags {
			k, v := ParseTag(tag)
			if k == "" {
				continue
			}
			dims[k] = v
		}
		return rawName
	}
	return ParseName(dims, rawName)
}

// ParseName strips a trailing "[k=v,...]" block from raw and adds its pairs
// to dims. Candidates without '=' are skipped; an empty key is kept.
func ParseName(dims map[string]string, raw string) string {
	open := strings.IndexByte(raw, '[')
	if open < 0 || !strings.HasSuffix(raw, "]") {
		return raw
	}

	body := raw[open+1 : len(raw)-1]
	for _, candidate := range strings.Split(body, ",") {
		parts := strings.SplitN(candidate, "=", 2)
		if len(parts) != 2 {
			continue
		}
		dims[parts[0]] = parts[1]
	}
	return raw[:open]
}

// ParseTag splits an escaped tag at the first unescaped '='. A backslash
// makes the next character literal. A tag without an unescaped '=' yields
// the whole (unescaped) tag as key and an empty value.
func ParseTag(tag string) (key, value string) {
	var (
		b       strings.Builder
		escaped bool
		inValue bool
	)
	b.Grow(len(tag))

	for i := 0; i < len(tag); i++ {
		c := tag[i]
		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '=' && !inValue:
			key = b.String()
			b.Reset()
			inValue = true
		default:
			b.WriteByte(c)
		}
	}
	if escaped {
		b.WriteByte('\\')
	}

	if !inValue {
		return b.String(), ""
	}
	return key, b.String()
}

// ParseList parses a comma separated list of escaped k=v tags, as used for
// default dimensions in environment variables. "\," keeps a literal comma.
func ParseList(s string) map[string]string {
	dims := make(map[string]string)
	if s == "" {
		return dims
	}

	var (
		cur     strings.Builder
		escaped bool
	)
	flush := func() {
		if k, v := ParseTag(cur.String()); k != "" {
			dims[k] = v
		}
		cur.Reset()
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			if c != ',' {
				cur.WriteByte('\\')
			}
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == ',':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if escaped {
		cur.WriteByte('\\')
	}
	flush()
	return dims
}
