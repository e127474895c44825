package ingest

import (
	"errors"
	"testing"

	"github.com/stellar-expert/operations-notifier/internal/apperrors"
	"github.com/stellar-expert/operations-notifier/internal/horizon"
	"github.com/stellar-expert/operations-notifier/internal/model"
)

const (
	testIssuer  = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	testAccount = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
)

func TestNormalizePayment(t *testing.T) {
	raw := &horizon.Transaction{
		Hash:          "abc123",
		PagingToken:   "104186647014576128000",
		SourceAccount: testAccount,
		Fee:           100,
		FeeCharged:    100,
		MaxFee:        200,
		CreatedAt:     "2024-01-01T00:00:00Z",
		MemoType:      "text",
		Memo:          "order-42",
		Operations: []horizon.Operation{
			{Type: "payment", Destination: testIssuer, Amount: "12.5", AssetCode: "USD", AssetIssuer: testIssuer},
		},
	}

	parsed, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if parsed.ID != "abc123" {
		t.Fatalf("unexpected transaction id %s", parsed.ID)
	}
	if len(parsed.Operations) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(parsed.Operations))
	}
	op := parsed.Operations[0]
	if op.TypeI != model.OpPayment || op.Type != "payment" {
		t.Fatalf("wrong type: %d %s", op.TypeI, op.Type)
	}
	// id = paging token + application order, beyond int64 range
	if op.ID != "104186647014576128001" {
		t.Fatalf("wrong operation id: %s", op.ID)
	}
	// operation source absent, falls back to transaction source
	if op.Account != testAccount {
		t.Fatalf("account not defaulted: %s", op.Account)
	}
	if op.Asset == nil || op.Asset.Code != "USD" || op.Asset.Issuer != testIssuer {
		t.Fatalf("asset not normalized: %+v", op.Asset)
	}
	if op.Memo != "order-42" {
		t.Fatalf("memo not propagated to operation: %q", op.Memo)
	}
	if op.TransactionDetails == nil || op.TransactionDetails.PagingToken != raw.PagingToken {
		t.Fatalf("transaction details missing")
	}
}

func TestNormalizeMemoEncoding(t *testing.T) {
	cases := []struct {
		memoType string
		in       string
		want     string
	}{
		{"text", "hello", "hello"},
		{"id", "12345", "12345"},
		// hex digest becomes base64
		{"hash", "00ff", "AP8="},
		{"return", "00ff", "AP8="},
		// already-encoded values stay verbatim
		{"hash", "AP8=", "AP8="},
	}
	for _, c := range cases {
		m := normalizeMemo(c.memoType, c.in)
		if m == nil || m.Value != c.want {
			t.Errorf("memo %s %q: got %+v, want %q", c.memoType, c.in, m, c.want)
		}
	}
	if m := normalizeMemo("none", ""); m != nil {
		t.Errorf("memo none should normalize to nil, got %+v", m)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	payment := []horizon.Operation{{Type: "payment", Destination: testIssuer, Amount: "1"}}
	cases := map[string]*horizon.Transaction{
		"no hash":       {PagingToken: "100", Operations: payment},
		"no operations": {Hash: "h", PagingToken: "100"},
		"bad token":     {Hash: "h", PagingToken: "not-a-number", Operations: payment},
	}
	for name, raw := range cases {
		if _, err := Normalize(raw); !errors.Is(err, apperrors.ErrParse) {
			t.Errorf("%s: expected parse error, got %v", name, err)
		}
	}
}

func TestNormalizeSkipsUnknownOperations(t *testing.T) {
	raw := &horizon.Transaction{
		Hash:        "h",
		PagingToken: "1000",
		Operations: []horizon.Operation{
			{Type: "liquidity_pool_deposit"},
			{Type: "account_merge", Destination: testIssuer},
		},
	}
	parsed, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(parsed.Operations) != 1 {
		t.Fatalf("expected unknown type dropped, got %d operations", len(parsed.Operations))
	}
	op := parsed.Operations[0]
	if op.TypeI != model.OpAccountMerge {
		t.Fatalf("wrong surviving operation: %+v", op)
	}
	// application order is positional, unaffected by dropped operations
	if op.ID != "1002" {
		t.Fatalf("wrong operation id: %s", op.ID)
	}
}

func TestNormalizeOfferAndTrustOps(t *testing.T) {
	raw := &horizon.Transaction{
		Hash:          "h",
		PagingToken:   "2000",
		SourceAccount: testAccount,
		Operations: []horizon.Operation{
			{
				Type:               "manage_sell_offer",
				Amount:             "50",
				Price:              "1.25",
				BuyingAssetCode:    "EUR",
				BuyingAssetIssuer:  testIssuer,
				SellingAssetCode:   "",
				SellingAssetIssuer: "",
			},
			{Type: "allow_trust", Trustor: testIssuer, AssetCode: "USD", Authorize: true},
		},
	}
	parsed, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	offer := parsed.Operations[0]
	if offer.TypeI != model.OpManageSellOffer {
		t.Fatalf("wrong offer type: %d", offer.TypeI)
	}
	if offer.Asset == nil || offer.Asset.Code != "EUR" {
		t.Fatalf("buying asset missing: %+v", offer.Asset)
	}
	if offer.CounterAsset == nil || offer.CounterAsset.Type != model.AssetTypeNative {
		t.Fatalf("selling leg should be native: %+v", offer.CounterAsset)
	}
	if offer.OfferID != "0" {
		t.Fatalf("offer id should default to 0, got %q", offer.OfferID)
	}

	trust := parsed.Operations[1]
	if trust.TypeI != model.OpAllowTrust || trust.Destination != testIssuer {
		t.Fatalf("allow_trust not normalized: %+v", trust)
	}
	if trust.Asset == nil || trust.Asset.Issuer != testIssuer {
		t.Fatalf("allow_trust asset should carry the trustor as issuer: %+v", trust.Asset)
	}
}
