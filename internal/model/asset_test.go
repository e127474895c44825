package model

import (
	"testing"
)

const (
	testIssuer      = "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	testOtherIssuer = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"
)

func TestNormalizeAsset(t *testing.T) {
	cases := []struct {
		name     string
		code     string
		issuer   string
		wantType AssetType
		wantNil  bool
	}{
		{"empty is native", "", "", AssetTypeNative, false},
		{"XLM without issuer is native", "XLM", "", AssetTypeNative, false},
		{"short code", "USD", testIssuer, AssetTypeAlphanum4, false},
		{"four chars", "EURT", testIssuer, AssetTypeAlphanum4, false},
		{"long code", "LONGCODE", testIssuer, AssetTypeAlphanum12, false},
		{"twelve chars", "ABCDEFGHIJKL", testIssuer, AssetTypeAlphanum12, false},
		{"missing issuer", "USD", "", 0, true},
		{"bad issuer", "USD", "not-a-key", 0, true},
		{"code too long", "ABCDEFGHIJKLM", testIssuer, 0, true},
		{"code bad chars", "US-D", testIssuer, 0, true},
	}
	for _, c := range cases {
		got := NormalizeAsset(c.code, c.issuer)
		if c.wantNil {
			if got != nil {
				t.Fatalf("%s: expected nil, got %+v", c.name, got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("%s: expected asset, got nil", c.name)
		}
		if got.Type != c.wantType {
			t.Fatalf("%s: type = %d, want %d", c.name, got.Type, c.wantType)
		}
	}
}

func TestAssetsEqual(t *testing.T) {
	usd := NormalizeAsset("USD", testIssuer)
	usdAgain := NormalizeAsset("USD", testIssuer)
	usdOther := NormalizeAsset("USD", testOtherIssuer)
	native := NativeAsset()

	if !AssetsEqual(usd, usdAgain) {
		t.Fatalf("identical assets should compare equal")
	}
	if AssetsEqual(usd, usdOther) {
		t.Fatalf("different issuers should not compare equal")
	}
	if AssetsEqual(usd, native) {
		t.Fatalf("issued asset should not equal native")
	}
	if !AssetsEqual(native, NativeAsset()) {
		t.Fatalf("native assets should compare equal")
	}
	if AssetsEqual(nil, native) || AssetsEqual(native, nil) {
		t.Fatalf("nil assets never compare equal")
	}
	invalid := &Asset{Type: AssetTypeAlphanum4, Code: "USD"}
	if AssetsEqual(invalid, invalid) {
		t.Fatalf("invalid assets never compare equal")
	}
}

func TestDeriveAssetType(t *testing.T) {
	if DeriveAssetType("") != AssetTypeNative {
		t.Fatalf("empty code should derive native")
	}
	if DeriveAssetType("EURT") != AssetTypeAlphanum4 {
		t.Fatalf("4-char code should derive alphanum4")
	}
	if DeriveAssetType("STELL") != AssetTypeAlphanum12 {
		t.Fatalf("5-char code should derive alphanum12")
	}
}
