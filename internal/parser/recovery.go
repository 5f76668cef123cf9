package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"bankparse/internal/domain"
)

// RecoveryError reports that no repair stage produced a JSON object.
type RecoveryError struct {
	Raw    string
	Reason string
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("%s: %s (raw: %s)", domain.ErrResponseNotParseable, e.Reason, truncate(e.Raw, 300))
}

func (e *RecoveryError) Unwrap() error {
	return domain.ErrResponseNotParseable
}

// RawResponse extracts the offending model output from an error chain, if any.
func RawResponse(err error) string {
	var recErr *RecoveryError
	if errors.As(err, &recErr) {
		return recErr.Raw
	}
	return ""
}

type recoveryStage struct {
	name      string
	transform func(string) string
}

// Each stage transforms the output of the one before it. Transforms are pure, so a
// stage that does not yield a parse leaves nothing behind except its input text.
var recoveryStages = []recoveryStage{
	{name: "as-is", transform: func(s string) string { return s }},
	{name: "strip-fences", transform: stripCodeFences},
	{name: "trailing-commas", transform: removeTrailingCommas},
	{name: "thousands-separators", transform: normalizeThousandsSeparators},
	{name: "first-object", transform: extractFirstObject},
}

// Recover turns raw model output into a single JSON object.
// Numbers are kept as json.Number so no precision is lost before decimal conversion.
func Recover(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &RecoveryError{Raw: raw, Reason: "empty response"}
	}

	candidate := raw
	var lastErr error
	for _, stage := range recoveryStages {
		candidate = stage.transform(candidate)
		if candidate == "" {
			lastErr = fmt.Errorf("%s: nothing left to parse", stage.name)
			break
		}
		obj, err := decodeObject(candidate)
		if err == nil {
			normalizeFields(obj)
			return obj, nil
		}
		lastErr = fmt.Errorf("%s: %w", stage.name, err)
	}

	// A fenced block inside prose: repair its body on its own, ignoring braces in the prose.
	if body, ok := extractFencedBlock(raw); ok {
		repaired := normalizeThousandsSeparators(removeTrailingCommas(body))
		if obj, err := decodeObject(repaired); err == nil {
			normalizeFields(obj)
			return obj, nil
		}
		if obj, err := decodeObject(extractFirstObject(repaired)); err == nil {
			normalizeFields(obj)
			return obj, nil
		}
	}

	// Last chance on the untouched raw text, which the cumulative pipeline may have mangled.
	if obj, err := decodeObject(removeTrailingCommas(extractFirstObject(raw))); err == nil {
		normalizeFields(obj)
		return obj, nil
	}

	return nil, &RecoveryError{Raw: raw, Reason: lastErr.Error()}
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return obj, nil
}

var (
	fenceOpenRe  = regexp.MustCompile("^```[A-Za-z]*[ \t]*\r?\n?")
	fenceCloseRe = regexp.MustCompile("\r?\n?```$")
)

// stripCodeFences removes a surrounding ```json ... ``` (or bare ```) wrapper.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = fenceOpenRe.ReplaceAllString(s, "")
	s = fenceCloseRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

var fencedBlockRe = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\r?\n?(.*?)```")

// extractFencedBlock returns the body of the first ```json ... ``` (or bare ```) block anywhere in s.
func extractFencedBlock(s string) (string, bool) {
	m := fencedBlockRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	body := strings.TrimSpace(m[1])
	return body, body != ""
}

// removeTrailingCommas drops commas that directly precede } or ], ignoring string contents.
func removeTrailingCommas(s string) string {
	for {
		out := dropTrailingCommasOnce(s)
		if out == s {
			return out
		}
		s = out
	}
}

func dropTrailingCommasOnce(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

var groupedNumberRe = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+(?:\.\d+)?`)

// normalizeThousandsSeparators rewrites unquoted tokens like 12,345.67 to 12345.67.
// Quoted amounts are handled after decoding by normalizeFields.
func normalizeThousandsSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			i++
			continue
		}
		if (isDigit(c) || c == '-') && (i == 0 || !isWordByte(s[i-1])) {
			if loc := groupedNumberRe.FindStringIndex(s[i:]); loc != nil {
				end := i + loc[1]
				if end >= len(s) || !isWordByte(s[end]) {
					b.WriteString(strings.ReplaceAll(s[i:end], ",", ""))
					i = end
					continue
				}
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// extractFirstObject returns the first balanced {...} substring, or "" if there is none.
func extractFirstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var (
	headerMoneyFields      = []string{"opening_balance", "closing_balance"}
	transactionMoneyFields = []string{"amount", "balance"}
	plainNumberRe          = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
)

// normalizeFields coerces values models commonly emit with the wrong JSON type:
// quoted or grouped amounts, empty strings for missing values, and quoted booleans.
func normalizeFields(obj map[string]any) {
	for _, k := range headerMoneyFields {
		if v, ok := obj[k]; ok {
			obj[k] = coerceNumber(v)
		}
	}
	if n, ok := obj["account_number"].(json.Number); ok {
		obj["account_number"] = n.String()
	}
	for _, k := range []string{"account_holder", "bank_name", "account_number", "currency", "next_page_hint"} {
		if s, ok := obj[k].(string); ok && isNullish(s) {
			obj[k] = nil
		}
	}
	if s, ok := obj["has_more"].(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			obj["has_more"] = true
		default:
			obj["has_more"] = false
		}
	}
	txns, ok := obj["transactions"].([]any)
	if !ok {
		return
	}
	for _, item := range txns {
		t, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, k := range transactionMoneyFields {
			if v, ok := t[k]; ok {
				t[k] = coerceNumber(v)
			}
		}
	}
}

func coerceNumber(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if isNullish(s) {
		return nil
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", " ", "", "$", "", "€", "", "£", "", "₹", "").Replace(s)
	if !plainNumberRe.MatchString(s) {
		return v
	}
	if negative && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return json.Number(s)
}

func isNullish(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a")
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordByte(c byte) bool {
	return isDigit(c) || c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// canonicalJSON re-encodes v with sorted keys; used when a decoded object must become bytes again.
func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
