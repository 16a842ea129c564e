package permit

import (
	"strconv"
	"strings"
)

// TypeCodeToPermitType maps the portal's application type code onto a local
// permit type. It is total: unknown or missing codes fall back to a revision
// for continuations and to a new building permit otherwise.
func TypeCodeToPermitType(code *int, isContinuation bool) Type {
	c := 0
	if code != nil {
		c = *code
	}

	if isContinuation {
		switch c {
		case 3:
			return TypeFileUpdate
		case 4:
			return TypeRevisionExt
		default:
			return TypeRevision
		}
	}

	switch c {
	case 1:
		return TypeNewBuilding
	case 5, 6:
		return TypeMinorCat1
	case 7, 8:
		return TypeMinorCat2
	case 9:
		return TypeVOD
	case 10:
		return TypePreapproval
	default:
		return TypeNewBuilding
	}
}

// ParseTypeCode coerces a type code sent as text. Zero and anything that is
// not an integer yield nil.
func ParseTypeCode(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return nil
		}
		n = int(f)
	}
	if n == 0 {
		return nil
	}
	return &n
}
