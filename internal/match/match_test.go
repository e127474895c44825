package match

import (
	"testing"

	"github.com/stellar-expert/operations-notifier/internal/model"
)

const (
	accountA = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	accountB = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
)

func paymentOp() *model.Operation {
	return &model.Operation{
		ID:          "104186647014576129",
		TypeI:       model.OpPayment,
		Type:        "payment",
		Account:     accountB,
		Destination: accountA,
		Amount:      "100.5",
		Asset:       model.NativeAsset(),
		Memo:        "order-1",
	}
}

func TestMatchesMemo(t *testing.T) {
	op := paymentOp()
	if !Matches(&model.Subscription{Memo: "order-1"}, op) {
		t.Fatalf("matching memo should pass")
	}
	if Matches(&model.Subscription{Memo: "other"}, op) {
		t.Fatalf("different memo should fail")
	}
	// unset memo filter matches any memo
	if !Matches(&model.Subscription{Account: accountA}, op) {
		t.Fatalf("unset memo filter should pass")
	}
}

func TestMatchesOperationTypes(t *testing.T) {
	op := paymentOp()
	if !Matches(&model.Subscription{OperationTypes: []int{model.OpPayment}}, op) {
		t.Fatalf("payment type should match")
	}
	if Matches(&model.Subscription{OperationTypes: []int{model.OpCreateAccount, model.OpAccountMerge}}, op) {
		t.Fatalf("non-matching type set should fail")
	}
}

func TestMatchesAccount(t *testing.T) {
	op := paymentOp()
	// destination match counts
	if !Matches(&model.Subscription{Account: accountA}, op) {
		t.Fatalf("destination should match account filter")
	}
	// source match counts
	if !Matches(&model.Subscription{Account: accountB}, op) {
		t.Fatalf("source account should match account filter")
	}
	if Matches(&model.Subscription{Account: "GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3"}, op) {
		t.Fatalf("unrelated account should fail")
	}
}

func TestMatchesAsset(t *testing.T) {
	usd := model.NormalizeAsset("USD", accountB)
	op := paymentOp()
	op.Asset = usd

	sub := &model.Subscription{Asset: model.NormalizeAsset("USD", accountB)}
	if !Matches(sub, op) {
		t.Fatalf("primary asset should match")
	}

	// counter asset leg (offers, path payments)
	offer := &model.Operation{
		TypeI:        model.OpManageSellOffer,
		Asset:        model.NativeAsset(),
		CounterAsset: usd,
	}
	if !Matches(sub, offer) {
		t.Fatalf("counter asset should match")
	}

	other := &model.Subscription{Asset: model.NormalizeAsset("EUR", accountB)}
	if Matches(other, op) {
		t.Fatalf("different asset should fail")
	}
}

func TestMatchesCombined(t *testing.T) {
	op := paymentOp()
	sub := &model.Subscription{
		Account:        accountA,
		OperationTypes: []int{model.OpPayment},
		Memo:           "order-1",
	}
	if !Matches(sub, op) {
		t.Fatalf("all filters satisfied should pass")
	}
	sub.OperationTypes = []int{model.OpCreateAccount}
	if Matches(sub, op) {
		t.Fatalf("one failing filter should fail the whole match")
	}
}

func TestMatchesIsPure(t *testing.T) {
	op := paymentOp()
	sub := &model.Subscription{Account: accountA, Memo: "order-1"}
	first := Matches(sub, op)
	for i := 0; i < 100; i++ {
		if Matches(sub, op) != first {
			t.Fatalf("predicate not deterministic on call %d", i)
		}
	}
}
