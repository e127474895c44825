// Package match implements the subscription filter predicate.
package match

import (
	"github.com/stellar-expert/operations-notifier/internal/model"
)

// Matches checks whether an operation satisfies the subscription filtering
// conditions. Pure: no side effects, deterministic for identical inputs.
//
// Memo comparison is intentionally loose: values are compared in their
// string-normalized form, so a subscription memo "123" matches an id memo 123.
func Matches(s *model.Subscription, op *model.Operation) bool {
	if s.Memo != "" && op.Memo != s.Memo {
		return false
	}
	if len(s.OperationTypes) > 0 && !containsType(s.OperationTypes, op.TypeI) {
		return false
	}
	if s.Account != "" && op.Account != s.Account && op.Destination != s.Account {
		return false
	}
	if s.Asset != nil {
		// covers offers and path payments with two asset legs
		return model.AssetsEqual(s.Asset, op.Asset) || model.AssetsEqual(s.Asset, op.CounterAsset)
	}
	return true
}

func containsType(types []int, typeI int) bool {
	for _, t := range types {
		if t == typeI {
			return true
		}
	}
	return false
}
