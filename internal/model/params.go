package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stellar/go/strkey"

	"github.com/stellar-expert/operations-notifier/internal/apperrors"
)

// SubscriptionParams carries raw, untrusted subscription parameters as they
// arrive from the API layer. Loosely typed fields accept both native JSON
// types and their string forms.
type SubscriptionParams struct {
	ReactionURL    string      `json:"reaction_url"`
	Account        string      `json:"account,omitempty"`
	Memo           interface{} `json:"memo,omitempty"`
	OperationTypes interface{} `json:"operation_types,omitempty"`
	AssetCode      string      `json:"asset_code,omitempty"`
	AssetIssuer    string      `json:"asset_issuer,omitempty"`
	Expires        interface{} `json:"expires,omitempty"`
}

var reactionURLPattern = regexp.MustCompile(`^https?://[\w\-.~:/?#\[\]@!$&'()*+,;=%]+$`)

// maxMemoLength bounds memo filters; longer values cannot appear in a
// transaction memo and would never match.
const maxMemoLength = 64

// Validate checks the params against the subscription invariants and builds
// a Subscription ready for persistence (id and timestamps are assigned by
// storage). At least one filter field must be set.
func (p *SubscriptionParams) Validate(now time.Time) (*Subscription, error) {
	if p == nil {
		return nil, apperrors.Validation("params", "subscription params were not provided")
	}
	if p.ReactionURL == "" {
		return nil, apperrors.Validation("reaction_url", "reaction URL is required")
	}
	if !reactionURLPattern.MatchString(p.ReactionURL) {
		return nil, apperrors.Validation("reaction_url", "reaction URL must be a valid http(s) URL")
	}

	sub := &Subscription{ReactionURL: p.ReactionURL}
	hasFilter := false

	if p.Account != "" {
		if !strkey.IsValidEd25519PublicKey(p.Account) {
			return nil, apperrors.Validation("account", "invalid account address")
		}
		sub.Account = p.Account
		hasFilter = true
	}

	if p.Memo != nil {
		memo := coerceString(p.Memo)
		if len(memo) > maxMemoLength {
			return nil, apperrors.Validation("memo", "invalid memo format, string is too long")
		}
		if memo != "" {
			sub.Memo = memo
			hasFilter = true
		}
	}

	if p.OperationTypes != nil {
		types, err := parseOperationTypes(p.OperationTypes)
		if err != nil {
			return nil, err
		}
		if len(types) > 0 {
			sub.OperationTypes = types
			hasFilter = true
		}
	}

	if p.AssetCode != "" {
		asset := NormalizeAsset(p.AssetCode, p.AssetIssuer)
		if asset == nil {
			return nil, apperrors.Validation("asset", "invalid asset format")
		}
		sub.Asset = asset
		hasFilter = true
	}

	if !hasFilter {
		return nil, apperrors.Validation("params", "no operation filter params were provided")
	}

	if p.Expires != nil {
		expires, err := parseExpires(p.Expires)
		if err != nil {
			return nil, err
		}
		if expires.Before(now) {
			return nil, apperrors.Validation("expires", "expiration date cannot be less than current date")
		}
		sub.Expires = &expires
	}

	return sub, nil
}

// coerceString normalizes loosely typed scalar values to their string form.
func coerceString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; memo ids are integral
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// parseOperationTypes accepts an array of numbers or a comma-separated string
// and validates every code against the known operation type range.
func parseOperationTypes(v interface{}) ([]int, error) {
	var raw []string
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			raw = append(raw, coerceString(e))
		}
	case []int:
		for _, e := range t {
			raw = append(raw, strconv.Itoa(e))
		}
	case string:
		if t == "" {
			return nil, nil
		}
		raw = strings.Split(t, ",")
	default:
		raw = strings.Split(coerceString(v), ",")
	}

	types := make([]int, 0, len(raw))
	for _, s := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < OpCreateAccount || n > OpPathPaymentStrictSend {
			return nil, apperrors.Validation("operation_types",
				"operation_types should be an array of integers matching existing operation types")
		}
		types = append(types, n)
	}
	return types, nil
}

// parseExpires accepts RFC3339 strings, unix timestamps (seconds or
// milliseconds), and their string forms.
func parseExpires(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, nil
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return unixFlexible(n), nil
		}
	case float64:
		return unixFlexible(int64(t)), nil
	case int64:
		return unixFlexible(t), nil
	case int:
		return unixFlexible(int64(t)), nil
	}
	return time.Time{}, apperrors.Validation("expires", "invalid expiration date format")
}

// unixFlexible treats values beyond year ~33658 in seconds as milliseconds.
func unixFlexible(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
