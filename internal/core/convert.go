package core

// convert.go turns user-provided text into typed listing values.
//
// Input comes from CSV exports, form fields and scraped pages, so the parsers
// tolerate the usual noise:
//   - Currency symbols, spaces and thousands separators in prices
//   - Several ISO-8601 shapes plus dd.mm.yyyy dates
//   - Excel formula prefixes (="value") and stray quotes in cells
//
// Lenient parsers report failure with ok=false; strict ones return an error
// that the validator turns into a ValidationError.

import (
	"errors"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// priceRegex accepts non-negative decimals with at most two fraction digits.
var priceRegex = regexp.MustCompile(`^(\d+(\.\d{0,2})?|\.\d{1,2})$`)

var amountCleaner = strings.NewReplacer(
	"$", "",
	"€", "", // Euro
	"£", "", // Pound
	"₽", "", // Ruble
	" ", "",
	" ", "", // no-break space
	" ", "", // narrow no-break space
)

var (
	errPriceBlank    = errors.New("price is required")
	errPriceNegative = errors.New("price must not be negative")
	errPriceFormat   = errors.New("price must be a decimal number with at most 2 decimal places")
	errPriceTooLarge = errors.New("price must not exceed 9999999999.99")
)

// maxPriceCents is the largest value a NUMERIC(12,2) column holds, in cents.
var maxPriceCents = big.NewInt(999_999_999_999)

// timestampLayouts lists accepted date-time shapes, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
}

// ParsePrice parses a price into a NUMERIC with scale 2.
// Currency symbols and spaces are stripped first. A single comma followed by
// one or two digits is the decimal point ("1 500,50 ₽"); otherwise commas
// must separate groups of three digits ("1,500.50").
func ParsePrice(s string) (pgtype.Numeric, error) {
	s = amountCleaner.Replace(strings.TrimSpace(s))
	if s == "" {
		return pgtype.Numeric{}, errPriceBlank
	}
	s, ok := normalizeCommas(s)
	if !ok {
		return pgtype.Numeric{}, errPriceFormat
	}
	if strings.HasPrefix(s, "-") {
		return pgtype.Numeric{}, errPriceNegative
	}
	s = strings.TrimPrefix(s, "+")
	if !priceRegex.MatchString(s) {
		return pgtype.Numeric{}, errPriceFormat
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	frac = (frac + "00")[:2]

	cents, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return pgtype.Numeric{}, errPriceFormat
	}
	if cents.Cmp(maxPriceCents) > 0 {
		return pgtype.Numeric{}, errPriceTooLarge
	}
	return pgtype.Numeric{Int: cents, Exp: -2, Valid: true}, nil
}

// normalizeCommas rewrites a decimal comma to a dot and drops thousands
// commas. It reports false when the commas fit neither shape.
func normalizeCommas(s string) (string, bool) {
	if !strings.Contains(s, ",") {
		return s, true
	}

	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		i := strings.IndexByte(s, ',')
		if n := len(s) - i - 1; n >= 1 && n <= 2 {
			return s[:i] + "." + s[i+1:], true
		}
	}

	whole, _, _ := strings.Cut(s, ".")
	groups := strings.Split(whole, ",")
	lead := strings.TrimLeft(groups[0], "+-")
	if len(lead) == 0 || len(lead) > 3 {
		return "", false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", false
		}
	}
	return strings.ReplaceAll(s, ",", ""), true
}

// FormatPrice renders a numeric with exactly two decimal places.
// Extra precision is truncated. Returns "" for an invalid numeric.
func FormatPrice(n pgtype.Numeric) string {
	if !n.Valid || n.Int == nil {
		return ""
	}

	v := new(big.Int).Set(n.Int)
	ten := big.NewInt(10)
	for exp := n.Exp; exp != -2; {
		if exp > -2 {
			v.Mul(v, ten)
			exp--
		} else {
			v.Quo(v, ten)
			exp++
		}
	}

	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()
	for len(digits) < 3 {
		digits = "0" + digits
	}
	out := digits[:len(digits)-2] + "." + digits[len(digits)-2:]
	if neg {
		out = "-" + out
	}
	return out
}

// ParseTimestamp parses an ISO-8601 style date-time.
// Values without a zone are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseRooms parses a non-negative room count.
func ParseRooms(s string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.New("rooms must be a whole number")
	}
	if n < 0 {
		return 0, errors.New("rooms must not be negative")
	}
	return int32(n), nil
}

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgUUID converts a uuid to pgtype.UUID. uuid.Nil is invalid (NULL).
func ToPgUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

// FromPgUUID converts a pgtype.UUID back. NULL becomes uuid.Nil.
func FromPgUUID(u pgtype.UUID) uuid.UUID {
	if !u.Valid {
		return uuid.Nil
	}
	return uuid.UUID(u.Bytes)
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching. The first occurrence
// of a duplicated header wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// CityNameFolder returns the function applied to city names before lookup.
// Without folding only surrounding whitespace is trimmed, so "moscow" and
// "Moscow" stay distinct cities.
func CityNameFolder(fold bool) func(string) string {
	if !fold {
		return strings.TrimSpace
	}
	return func(s string) string {
		// Casers are stateful; one per call keeps this safe for concurrent imports.
		return strings.Join(strings.Fields(cases.Title(language.Und).String(s)), " ")
	}
}
