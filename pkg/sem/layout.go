package sem

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Layout describes how the reply body of one command code is decoded. A reply
// body starts with the echoed code followed by a fixed-width digit field.
type Layout struct {
	Code   string
	Digits int
	Decode func(digits string) (float64, error)
}

var layouts = map[string]Layout{
	"E":  energyLayout("E"),
	"W":  energyLayout("W"),
	"V":  energyLayout("V"),
	"U":  energyLayout("U"),
	"=M": {Code: "=M", Digits: 4, Decode: decodeTensOfWatt},
	"D":  {Code: "D", Digits: 13, Decode: decodeMeterClock},
}

func energyLayout(code string) Layout {
	return Layout{Code: code, Digits: 8, Decode: decodeWattHour}
}

// LookupLayout finds the layout of a command. Exact codes win; otherwise the
// command is treated as a single letter code with a suffix (V1, V2, ...),
// which the meter answers with the bare letter ("V00012345").
func LookupLayout(command string) (Layout, bool) {
	if l, ok := layouts[command]; ok {
		return l, true
	}
	if command == "" {
		return Layout{}, false
	}
	l, ok := layouts[command[:1]]
	return l, ok
}

func SupportedCommands() []string {
	codes := make([]string, 0, len(layouts))
	for code := range layouts {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// Parse strips the echoed code from a reply body and decodes the digit field.
func (l Layout) Parse(body string) (float64, error) {
	digits, ok := strings.CutPrefix(body, l.Code)
	if !ok {
		return 0, fmt.Errorf("%w: %q does not start with %q", ErrInvalidValue, body, l.Code)
	}
	if len(digits) != l.Digits {
		return 0, fmt.Errorf("%w: expected %d digits, got %q", ErrInvalidValue, l.Digits, digits)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidValue, digits)
		}
	}
	return l.Decode(digits)
}

func decodeWattHour(digits string) (float64, error) {
	wh, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return float64(wh) / 1000, nil
}

func decodeTensOfWatt(digits string) (float64, error) {
	tens, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return float64(tens) * 10, nil
}

// decodeMeterClock parses "wHHMMSSDDMMYY" (weekday 0 is sunday) into Unix seconds.
func decodeMeterClock(digits string) (float64, error) {
	field := func(from int) int {
		v, _ := strconv.Atoi(digits[from : from+2])
		return v
	}
	weekday := int(digits[0] - '0')
	hour, minute, second := field(1), field(3), field(5)
	day, month, year := field(7), field(9), 2000+field(11)

	if weekday > 6 || hour > 23 || minute > 59 || second > 59 ||
		day < 1 || day > 31 || month < 1 || month > 12 {
		return 0, fmt.Errorf("%w: clock %q out of range", ErrInvalidValue, digits)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Day() != day {
		return 0, fmt.Errorf("%w: %02d.%02d.%04d is not a date", ErrInvalidValue, day, month, year)
	}
	return float64(t.Unix()), nil
}
