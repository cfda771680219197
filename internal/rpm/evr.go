package rpm

import (
	"strconv"
	"strings"
)

// EVR is a parsed [epoch:]version[-release][:disttag] string.
type EVR struct {
	Epoch    int64
	HasEpoch bool
	Version  string
	Release  string
	Disttag  string
}

// ParseEVR splits an RPM version string into its components.
// A leading "N:" is taken as the epoch only when N is all digits; an absent epoch is
// reported with HasEpoch=false and compares as 0. The disttag, when present, follows
// the release after a colon (e.g. "1.0-alt1:sisyphus+1234.100.1.1").
func ParseEVR(s string) EVR {
	var evr EVR

	s = strings.TrimSpace(s)

	if idx := strings.IndexByte(s, ':'); idx > 0 && allDigits(s[:idx]) {
		if epoch, err := strconv.ParseInt(s[:idx], 10, 64); err == nil {
			evr.Epoch = epoch
			evr.HasEpoch = true
			s = s[idx+1:]
		}
	}

	dash := strings.LastIndexByte(s, '-')
	if dash < 0 {
		evr.Version = s

		return evr
	}

	evr.Version = s[:dash]
	rest := s[dash+1:]

	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		evr.Release = rest[:idx]
		evr.Disttag = rest[idx+1:]
	} else {
		evr.Release = rest
	}

	return evr
}

// String renders the EVR back to its canonical textual form.
func (e EVR) String() string {
	var b strings.Builder

	if e.HasEpoch {
		b.WriteString(strconv.FormatInt(e.Epoch, 10))
		b.WriteByte(':')
	}

	b.WriteString(e.Version)

	if e.Release != "" {
		b.WriteByte('-')
		b.WriteString(e.Release)
	}

	if e.Disttag != "" {
		b.WriteByte(':')
		b.WriteString(e.Disttag)
	}

	return b.String()
}

// IsZero reports whether no version information is present.
func (e EVR) IsZero() bool {
	return !e.HasEpoch && e.Version == "" && e.Release == "" && e.Disttag == ""
}

// CompareEVR orders two EVRs: epoch first (absent = 0), then version, then release
// and disttag, each of the last two only when both sides carry one.
func CompareEVR(a, b EVR) int {
	switch {
	case a.Epoch < b.Epoch:
		return -1
	case a.Epoch > b.Epoch:
		return 1
	}

	if rc := Vercmp(a.Version, b.Version); rc != 0 {
		return rc
	}

	if a.Release != "" && b.Release != "" {
		if rc := Vercmp(a.Release, b.Release); rc != 0 {
			return rc
		}
	}

	if a.Disttag != "" && b.Disttag != "" {
		return Vercmp(a.Disttag, b.Disttag)
	}

	return 0
}

// Compare parses and compares two version strings.
func Compare(a, b string) int {
	return CompareEVR(ParseEVR(a), ParseEVR(b))
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}

	return s != ""
}
