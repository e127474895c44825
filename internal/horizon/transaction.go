// Package horizon talks to a Horizon-style transaction feed. It exposes the
// Source interface the ingestion pipeline consumes, plus an HTTP client that
// implements it with paginated fetches and an SSE live stream.
package horizon

// Transaction is one raw record from the upstream feed, with its operations
// expanded into structured form.
type Transaction struct {
	ID                    string `json:"id"`
	Hash                  string `json:"hash"`
	PagingToken           string `json:"paging_token"`
	SourceAccount         string `json:"source_account"`
	SourceAccountSequence string `json:"source_account_sequence"`
	Fee                   int64  `json:"fee"`
	FeeCharged            int64  `json:"fee_charged,string"`
	MaxFee                int64  `json:"max_fee,string"`
	CreatedAt             string `json:"created_at"`
	MemoType              string `json:"memo_type,omitempty"`
	Memo                  string `json:"memo,omitempty"`

	TimeBounds *TimeBounds `json:"time_bounds,omitempty"`

	Operations []Operation `json:"operations"`
}

// TimeBounds is the raw validity window of a transaction.
type TimeBounds struct {
	MinTime int64 `json:"min_time"`
	MaxTime int64 `json:"max_time"`
}

// Operation is one raw operation record. Field applicability depends on Type;
// absent fields stay zero.
type Operation struct {
	Type          string `json:"type"`
	SourceAccount string `json:"source_account,omitempty"`
	Destination   string `json:"destination,omitempty"`
	Amount        string `json:"amount,omitempty"`

	StartingBalance string `json:"starting_balance,omitempty"`

	AssetCode   string `json:"asset_code,omitempty"`
	AssetIssuer string `json:"asset_issuer,omitempty"`

	SourceAssetCode   string  `json:"source_asset_code,omitempty"`
	SourceAssetIssuer string  `json:"source_asset_issuer,omitempty"`
	SourceMax         string  `json:"source_max,omitempty"`
	DestinationMin    string  `json:"destination_min,omitempty"`
	Path              []Asset `json:"path,omitempty"`

	BuyingAssetCode    string `json:"buying_asset_code,omitempty"`
	BuyingAssetIssuer  string `json:"buying_asset_issuer,omitempty"`
	SellingAssetCode   string `json:"selling_asset_code,omitempty"`
	SellingAssetIssuer string `json:"selling_asset_issuer,omitempty"`
	Price              string `json:"price,omitempty"`
	OfferID            string `json:"offer_id,omitempty"`

	Trustor   string `json:"trustor,omitempty"`
	Limit     string `json:"limit,omitempty"`
	Authorize bool   `json:"authorize,omitempty"`

	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`

	BumpTo string `json:"bump_to,omitempty"`

	InflationDest string `json:"inflation_dest,omitempty"`
	HomeDomain    string `json:"home_domain,omitempty"`
	SignerKey     string `json:"signer_key,omitempty"`
	SignerWeight  *int   `json:"signer_weight,omitempty"`
	MasterWeight  *int   `json:"master_weight,omitempty"`
	LowThreshold  *int   `json:"low_threshold,omitempty"`
	MedThreshold  *int   `json:"med_threshold,omitempty"`
	HighThreshold *int   `json:"high_threshold,omitempty"`
	SetFlags      *int   `json:"set_flags,omitempty"`
	ClearFlags    *int   `json:"clear_flags,omitempty"`
}

// Asset is a raw asset reference. An empty code denotes the native asset.
type Asset struct {
	AssetCode   string `json:"asset_code,omitempty"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
}
