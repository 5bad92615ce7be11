package protocol

import (
	"regexp"
	"strings"
)

// Strip returns a parser that trims leading and trailing whitespace, plus
// any additional characters in cutset.
func Strip(cutset string) ParseFunc {
	return func(s string) (string, error) {
		s = strings.TrimSpace(s)
		if cutset != "" {
			s = strings.Trim(s, cutset)
		}

		return s, nil
	}
}

// Field returns a parser that splits the reply on sep and selects one
// field. Negative indices count from the end, -1 being the last field.
// Empty sep splits on runs of whitespace.
func Field(index int, sep string) ParseFunc {
	return func(s string) (string, error) {
		var fields []string
		if sep == "" {
			fields = strings.Fields(s)
		} else {
			fields = strings.Split(s, sep)
		}

		i := index
		if i < 0 {
			i += len(fields)
		}

		if i < 0 || i >= len(fields) {
			return "", newDecodeError(s, "field %d of %d", index, len(fields))
		}

		return fields[i], nil
	}
}

// Slice returns a parser that selects the byte range [start, end) of the
// reply. Negative offsets count from the end; end of zero means the end of
// the reply.
func Slice(start, end int) ParseFunc {
	return func(s string) (string, error) {
		lo, hi := start, end

		if lo < 0 {
			lo += len(s)
		}

		if hi <= 0 {
			hi += len(s)
		}

		if lo < 0 || hi > len(s) || lo > hi {
			return "", newDecodeError(s, "slice [%d:%d] of %d bytes", start, end, len(s))
		}

		return s[lo:hi], nil
	}
}

// Match returns a parser that applies re and selects the given capture
// group, group zero being the whole match.
func Match(re *regexp.Regexp, group int) ParseFunc {
	return func(s string) (string, error) {
		m := re.FindStringSubmatch(s)
		if m == nil {
			return "", newDecodeError(s, "no match for %s", re.String())
		}

		if group < 0 || group >= len(m) {
			return "", newDecodeError(s, "group %d of %d", group, len(m)-1)
		}

		return m[group], nil
	}
}

// Chain returns a parser that applies the given parsers in order, feeding
// each one's output to the next.
func Chain(parsers ...ParseFunc) ParseFunc {
	return func(s string) (string, error) {
		var err error
		for _, p := range parsers {
			s, err = p(s)
			if err != nil {
				return "", err
			}
		}

		return s, nil
	}
}
