package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseErrorKind classifies reply parsing failures
type ParseErrorKind int

const (
	NoJSONFound ParseErrorKind = iota + 1
	InvalidJSON
	InvalidShape
	InvalidAmount
)

func (k ParseErrorKind) String() string {
	switch k {
	case NoJSONFound:
		return "no JSON found"
	case InvalidJSON:
		return "invalid JSON"
	case InvalidShape:
		return "invalid shape"
	case InvalidAmount:
		return "invalid amount"
	}
	return "unknown"
}

// ParseError reports a model reply that did not yield a receipt
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parsing receipt data: " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches another *ParseError of the same kind
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrNoJSONFound   = &ParseError{Kind: NoJSONFound}
	ErrInvalidJSON   = &ParseError{Kind: InvalidJSON}
	ErrInvalidShape  = &ParseError{Kind: InvalidShape}
	ErrInvalidAmount = &ParseError{Kind: InvalidAmount}
)

var (
	// first {...} allowing one level of nested braces
	jsonObjectPattern = regexp.MustCompile(`\{(?:[^{}]|\{[^{}]*\})*\}`)
	codeFencePattern  = regexp.MustCompile("```json|```")
	nonNumericPattern = regexp.MustCompile(`[^0-9.\-]+`)
	leadingFloat      = regexp.MustCompile(`^-?(?:\d+(?:\.\d*)?|\.\d+)`)
)

// Parse extracts a receipt from a model reply. The reply may be bare JSON
// or JSON wrapped in prose and markdown code fences.
func Parse(raw string) (ExtractedReceipt, error) {
	value, err := decodeReply(raw)
	if err != nil {
		return ExtractedReceipt{}, err
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return ExtractedReceipt{}, &ParseError{Kind: InvalidShape, Detail: fmt.Sprintf("expected an object, got %s", jsonType(value))}
	}

	amount, err := parseAmount(obj["totalAmount"])
	if err != nil {
		return ExtractedReceipt{}, err
	}

	shop, ok := obj["shopName"].(string)
	if !ok {
		return ExtractedReceipt{}, &ParseError{Kind: InvalidShape, Detail: "shopName is not a string"}
	}
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return ExtractedReceipt{}, &ParseError{Kind: InvalidShape, Detail: "shopName is empty"}
	}

	return ExtractedReceipt{ShopName: shop, TotalAmount: amount}, nil
}

func decodeReply(raw string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err == nil {
		return value, nil
	}

	candidate := jsonObjectPattern.FindString(raw)
	if candidate == "" {
		return nil, &ParseError{Kind: NoJSONFound}
	}
	candidate = strings.TrimSpace(codeFencePattern.ReplaceAllString(candidate, ""))

	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return nil, &ParseError{Kind: InvalidJSON, Err: err}
	}
	return value, nil
}

func parseAmount(v any) (float64, error) {
	var amount float64
	switch t := v.(type) {
	case float64:
		amount = t
	case string:
		amount = parseLeadingFloat(nonNumericPattern.ReplaceAllString(t, ""))
	default:
		return 0, &ParseError{Kind: InvalidAmount, Detail: fmt.Sprintf("totalAmount is %s", jsonType(v))}
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, &ParseError{Kind: InvalidAmount, Detail: "totalAmount is not a number"}
	}
	if amount < 0 {
		return 0, &ParseError{Kind: InvalidAmount, Detail: "totalAmount is negative"}
	}
	return amount, nil
}

// parseLeadingFloat reads the longest numeric prefix of s, returning NaN
// when there is none. "12.5.3" is 12.5 and "1-2" is 1.
func parseLeadingFloat(s string) float64 {
	prefix := leadingFloat.FindString(s)
	if prefix == "" || prefix == "-" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case float64:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	}
	return fmt.Sprintf("%T", v)
}
