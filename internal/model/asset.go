package model

import (
	"regexp"

	"github.com/stellar/go/strkey"
)

// AssetType classifies an asset (0 - native, 1 - alphanum4, 2 - alphanum12).
type AssetType int

const (
	AssetTypeNative AssetType = iota
	AssetTypeAlphanum4
	AssetTypeAlphanum12
)

// Asset identifies a network asset by type, code, and issuing account.
type Asset struct {
	Type   AssetType `json:"asset_type" msgpack:"t"`
	Code   string    `json:"asset_code,omitempty" msgpack:"c"`
	Issuer string    `json:"asset_issuer,omitempty" msgpack:"i"`
}

var assetCodePattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,12}$`)

// DeriveAssetType derives the asset type from the code length.
func DeriveAssetType(code string) AssetType {
	if code == "" {
		return AssetTypeNative
	}
	if len(code) > 4 {
		return AssetTypeAlphanum12
	}
	return AssetTypeAlphanum4
}

// NativeAsset returns the native asset descriptor.
func NativeAsset() *Asset {
	return &Asset{Type: AssetTypeNative}
}

// NormalizeAsset builds a canonical asset from raw code/issuer values.
// The type is always derived from the code. "XLM" without an issuer collapses
// to the native asset. Returns nil when the combination is invalid.
func NormalizeAsset(code, issuer string) *Asset {
	if code == "" && issuer == "" {
		return NativeAsset()
	}
	if code == "XLM" && issuer == "" {
		return NativeAsset()
	}
	a := &Asset{Type: DeriveAssetType(code), Code: code, Issuer: issuer}
	if !a.Valid() {
		return nil
	}
	return a
}

// Valid reports whether the asset is internally consistent: native assets
// carry no code/issuer, issued assets carry a well-formed code and a valid
// ed25519 issuer address, and the type agrees with the code length.
func (a *Asset) Valid() bool {
	if a == nil {
		return false
	}
	if a.Type == AssetTypeNative {
		return a.Code == "" && a.Issuer == ""
	}
	if a.Code == "" || !assetCodePattern.MatchString(a.Code) {
		return false
	}
	if !strkey.IsValidEd25519PublicKey(a.Issuer) {
		return false
	}
	return DeriveAssetType(a.Code) == a.Type
}

// AssetsEqual reports whether two valid assets are the same. Invalid or nil
// assets never compare equal.
func AssetsEqual(a, b *Asset) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	return a.Type == b.Type && a.Code == b.Code && a.Issuer == b.Issuer
}
