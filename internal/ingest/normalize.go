// Package ingest turns the raw upstream transaction feed into stored
// notifications. The normalizer produces canonical operations, the watcher
// drives the queue that matches them against active subscriptions.
package ingest

import (
	"encoding/base64"
	"encoding/hex"
	"math/big"

	"github.com/stellar-expert/operations-notifier/internal/apperrors"
	"github.com/stellar-expert/operations-notifier/internal/horizon"
	"github.com/stellar-expert/operations-notifier/internal/model"
)

// Normalize converts a raw transaction into its canonical form. Malformed
// envelopes (missing hash, no operations, unparseable paging token) yield a
// parse error; callers log and skip them. Operations of unrecognized types
// are dropped silently.
func Normalize(raw *horizon.Transaction) (*model.ParsedTransaction, error) {
	if raw.Hash == "" {
		return nil, apperrors.Parse("transaction has no hash")
	}
	if len(raw.Operations) == 0 {
		return nil, apperrors.Parse("transaction has no operations")
	}
	token, ok := new(big.Int).SetString(raw.PagingToken, 10)
	if !ok {
		return nil, apperrors.Parse("invalid paging token " + raw.PagingToken)
	}

	details := &model.TransactionDetails{
		Hash:                  raw.Hash,
		Fee:                   raw.Fee,
		FeeCharged:            raw.FeeCharged,
		MaxFee:                raw.MaxFee,
		Source:                raw.SourceAccount,
		PagingToken:           raw.PagingToken,
		SourceAccountSequence: raw.SourceAccountSequence,
		CreatedAt:             raw.CreatedAt,
		Memo:                  normalizeMemo(raw.MemoType, raw.Memo),
	}
	if raw.TimeBounds != nil {
		details.TimeBounds = &model.TimeBounds{
			Min: raw.TimeBounds.MinTime,
			Max: raw.TimeBounds.MaxTime,
		}
	}
	var memoValue string
	if details.Memo != nil {
		memoValue = details.Memo.Value
	}

	parsed := &model.ParsedTransaction{ID: raw.Hash, Details: details}
	for i := range raw.Operations {
		op := normalizeOperation(&raw.Operations[i])
		if op == nil {
			continue
		}
		// operation id = transaction paging token + application order
		op.ID = new(big.Int).Add(token, big.NewInt(int64(i)+1)).String()
		if op.Account == "" {
			op.Account = raw.Operations[i].SourceAccount
		}
		if op.Account == "" {
			op.Account = raw.SourceAccount
		}
		op.Memo = memoValue
		op.TransactionDetails = details
		parsed.Operations = append(parsed.Operations, op)
	}
	return parsed, nil
}

// normalizeMemo keeps id and text memo values verbatim and base64-encodes
// hash and return memos. Feeds that deliver the digest hex-encoded are
// converted; values that do not decode as hex are assumed to be base64
// already.
func normalizeMemo(memoType, value string) *model.Memo {
	switch memoType {
	case "id", "text":
		return &model.Memo{Type: memoType, Value: value}
	case "hash", "return":
		if raw, err := hex.DecodeString(value); err == nil && len(raw) > 0 {
			value = base64.StdEncoding.EncodeToString(raw)
		}
		return &model.Memo{Type: memoType, Value: value}
	}
	return nil
}

func normalizeOperation(raw *horizon.Operation) *model.Operation {
	op := &model.Operation{Account: raw.SourceAccount}
	switch raw.Type {
	case "create_account":
		op.TypeI = model.OpCreateAccount
		op.Destination = raw.Destination
		op.Amount = raw.StartingBalance
		op.Asset = model.NormalizeAsset("", "")
	case "payment":
		op.TypeI = model.OpPayment
		op.Destination = raw.Destination
		op.Amount = raw.Amount
		op.Asset = model.NormalizeAsset(raw.AssetCode, raw.AssetIssuer)
	case "path_payment", "path_payment_strict_receive":
		op.TypeI = model.OpPathPaymentStrictReceive
		op.Destination = raw.Destination
		op.Amount = raw.Amount
		op.Asset = model.NormalizeAsset(raw.AssetCode, raw.AssetIssuer)
		op.CounterAsset = model.NormalizeAsset(raw.SourceAssetCode, raw.SourceAssetIssuer)
		op.SourceMax = raw.SourceMax
		op.Path = normalizePath(raw.Path)
	case "path_payment_strict_send":
		op.TypeI = model.OpPathPaymentStrictSend
		op.Destination = raw.Destination
		op.Amount = raw.Amount
		op.Asset = model.NormalizeAsset(raw.AssetCode, raw.AssetIssuer)
		op.CounterAsset = model.NormalizeAsset(raw.SourceAssetCode, raw.SourceAssetIssuer)
		op.DestMin = raw.DestinationMin
		op.Path = normalizePath(raw.Path)
	case "manage_offer", "manage_sell_offer":
		op.TypeI = model.OpManageSellOffer
		normalizeOffer(op, raw)
	case "manage_buy_offer":
		op.TypeI = model.OpManageBuyOffer
		normalizeOffer(op, raw)
	case "create_passive_offer", "create_passive_sell_offer":
		op.TypeI = model.OpCreatePassiveSellOffer
		op.Asset = model.NormalizeAsset(raw.BuyingAssetCode, raw.BuyingAssetIssuer)
		op.CounterAsset = model.NormalizeAsset(raw.SellingAssetCode, raw.SellingAssetIssuer)
		op.Amount = raw.Amount
		op.Price = raw.Price
	case "set_options":
		op.TypeI = model.OpSetOptions
		op.InflationDest = raw.InflationDest
		op.HomeDomain = raw.HomeDomain
		op.SignerKey = raw.SignerKey
		op.SignerWeight = raw.SignerWeight
		op.MasterWeight = raw.MasterWeight
		op.LowThreshold = raw.LowThreshold
		op.MedThreshold = raw.MedThreshold
		op.HighThreshold = raw.HighThreshold
		op.SetFlags = raw.SetFlags
		op.ClearFlags = raw.ClearFlags
	case "change_trust":
		op.TypeI = model.OpChangeTrust
		op.Asset = model.NormalizeAsset(raw.AssetCode, raw.AssetIssuer)
		op.Limit = raw.Limit
	case "allow_trust":
		op.TypeI = model.OpAllowTrust
		op.Destination = raw.Trustor
		op.Asset = model.NormalizeAsset(raw.AssetCode, raw.Trustor)
		op.Authorize = raw.Authorize
	case "account_merge":
		op.TypeI = model.OpAccountMerge
		op.Destination = raw.Destination
	case "inflation":
		op.TypeI = model.OpInflation
	case "manage_data":
		op.TypeI = model.OpManageData
		op.Name = raw.Name
		op.Value = raw.Value
	case "bump_sequence":
		op.TypeI = model.OpBumpSequence
		op.BumpTo = raw.BumpTo
	default:
		return nil
	}
	op.Type = model.OpTypeName(op.TypeI)
	return op
}

func normalizeOffer(op *model.Operation, raw *horizon.Operation) {
	op.Asset = model.NormalizeAsset(raw.BuyingAssetCode, raw.BuyingAssetIssuer)
	op.CounterAsset = model.NormalizeAsset(raw.SellingAssetCode, raw.SellingAssetIssuer)
	op.Amount = raw.Amount
	op.Price = raw.Price
	op.OfferID = raw.OfferID
	if op.OfferID == "" {
		op.OfferID = "0"
	}
}

func normalizePath(path []horizon.Asset) []*model.Asset {
	if len(path) == 0 {
		return nil
	}
	out := make([]*model.Asset, 0, len(path))
	for _, a := range path {
		out = append(out, model.NormalizeAsset(a.AssetCode, a.AssetIssuer))
	}
	return out
}
