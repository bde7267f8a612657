package rows

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NullValue is the distinguished value a null cell decodes to, regardless
// of its column's declared type tag.
type NullValue struct{}

// Null is the single instance of NullValue returned for every null cell.
var Null = NullValue{}

func (NullValue) String() string { return "NULL" }

// julianDayUnixEpoch is the Julian day number of 1970-01-01, the anchor
// the spec pins date decoding to: JD = days + julianDayUnixEpoch.
const julianDayUnixEpoch = 2440588

// Decode maps a raw Service cell string to a typed Go value according to
// the column's RowType. A nil raw pointer (JSON null or absent) always
// decodes to Null, regardless of type tag.
func Decode(rt RowType, raw *string) (any, error) {
	if raw == nil {
		return Null, nil
	}
	s := *raw

	switch normalizeType(rt.Type) {
	case "boolean":
		return s == "true", nil

	case "date":
		return decodeDate(s)

	case "fixed":
		return decodeFixed(s, rt.Scale)

	case "float", "double", "real", "double precision":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("decode %s cell %q: %w", rt.Type, s, err)
		}
		return f, nil

	case "time", "datetime", "timestamp", "timestamp_ltz", "timestamp_ntz":
		return decodeInstantSeconds(s)

	case "timestamp_tz":
		return decodeTimestampTZ(s)

	default:
		// Unrecognized or explicitly "other": passthrough as-is.
		return s, nil
	}
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func decodeDate(s string) (time.Time, error) {
	days, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode date cell %q: %w", s, err)
	}
	jdn := days + julianDayUnixEpoch
	year, month, day := civilFromJDN(jdn)
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// civilFromJDN converts a Julian Day Number to a proleptic Gregorian
// civil date, via the standard integer arithmetic (Fliegel & Van
// Flandern). No calendar library in the example pack does warehouse
// epoch-day decoding, so this is implemented directly.
func civilFromJDN(jdn int64) (year, month, day int) {
	l := jdn + 68569
	n := (4 * l) / 146097
	l = l - (146097*n+3)/4
	i := (4000 * (l + 1)) / 1461001
	l = l - (1461*i)/4 + 31
	j := (80 * l) / 2447
	day = int(l - (2447*j)/80)
	l = j / 11
	month = int(j + 2 - 12*l)
	year = int(100*(n-49) + i + l)
	return
}

func decodeFixed(s string, scale int) (any, error) {
	if scale == 0 {
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("decode fixed cell %q as integer", s)
		}
		return i, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("decode fixed cell %q as decimal: %w", s, err)
	}
	// Round half-even to the declared scale, per the spec's numeric
	// fidelity requirement (no float64 intermediary).
	return d.RoundBank(int32(scale)), nil
}

// decodeInstantSeconds parses a decimal fractional-seconds-since-epoch
// string into a UTC instant.
func decodeInstantSeconds(s string) (time.Time, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp cell %q: %w", s, err)
	}
	return decimalSecondsToTime(d), nil
}

// decodeTimestampTZ splits "<seconds> <offset_minutes>" on a single ASCII
// space and yields the instant at seconds - offset_minutes*60. Per the
// spec's design notes this subtracts rather than adds the offset,
// inverting the usual "add offset to reach UTC" convention; preserved as
// specified rather than "corrected".
func decodeTimestampTZ(s string) (time.Time, error) {
	parts := strings.SplitN(s, " ", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("decode timestamp_tz cell %q: expected \"<seconds> <offset_minutes>\"", s)
	}

	secondsDec, err := decimal.NewFromString(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp_tz cell %q: %w", s, err)
	}
	offsetMinutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp_tz cell %q: %w", s, err)
	}

	t := decimalSecondsToTime(secondsDec)
	return t.Add(-time.Duration(offsetMinutes) * time.Minute), nil
}

func decimalSecondsToTime(d decimal.Decimal) time.Time {
	sec := d.IntPart()
	frac := d.Sub(decimal.NewFromInt(sec))
	nanos := frac.Mul(decimal.NewFromInt(1_000_000_000)).IntPart()
	return time.Unix(sec, nanos).UTC()
}
