package provider

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ParsePrice extracts the first amount from a display price such as
// "$1,199.99", "USD 45", "£12.50 - £20.00" or "1199.99". It reports false
// when no positive amount is present.
func ParsePrice(s string) (float64, bool) {
	var b strings.Builder
	started := false
scan:
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			started = true
		case r == '.' && started:
			b.WriteRune(r)
		case r == ',' && started:
			// thousands separator
		case started:
			break scan
		}
	}
	v, err := strconv.ParseFloat(strings.TrimRight(b.String(), "."), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Price decodes a JSON number, a numeric string or a display price string.
// Unparseable and null values decode to 0.
type Price float64

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, _ := ParsePrice(s)
		*p = Price(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*p = 0
		return nil
	}
	*p = Price(f)
	return nil
}

// Float returns p as a float64.
func (p Price) Float() float64 { return float64(p) }
