package model

// Operation type codes. One fixed code per operation kind; the numbering is
// part of the wire contract and never reordered.
const (
	OpCreateAccount            = 0
	OpPayment                  = 1
	OpPathPaymentStrictReceive = 2
	OpManageSellOffer          = 3
	OpCreatePassiveSellOffer   = 4
	OpSetOptions               = 5
	OpChangeTrust              = 6
	OpAllowTrust               = 7
	OpAccountMerge             = 8
	OpInflation                = 9
	OpManageData               = 10
	OpBumpSequence             = 11
	OpManageBuyOffer           = 12
	OpPathPaymentStrictSend    = 13
)

// OpTypeName maps an operation type code to its canonical snake_case name.
func OpTypeName(typeI int) string {
	switch typeI {
	case OpCreateAccount:
		return "create_account"
	case OpPayment:
		return "payment"
	case OpPathPaymentStrictReceive:
		return "path_payment_strict_receive"
	case OpManageSellOffer:
		return "manage_sell_offer"
	case OpCreatePassiveSellOffer:
		return "create_passive_sell_offer"
	case OpSetOptions:
		return "set_options"
	case OpChangeTrust:
		return "change_trust"
	case OpAllowTrust:
		return "allow_trust"
	case OpAccountMerge:
		return "account_merge"
	case OpInflation:
		return "inflation"
	case OpManageData:
		return "manage_data"
	case OpBumpSequence:
		return "bump_sequence"
	case OpManageBuyOffer:
		return "manage_buy_offer"
	case OpPathPaymentStrictSend:
		return "path_payment_strict_send"
	default:
		return "unknown"
	}
}

// Memo is a normalized transaction memo. Hash and return memos carry their
// value base64-encoded; id and text memos keep the value verbatim.
type Memo struct {
	Type  string `json:"type" msgpack:"t"`
	Value string `json:"value" msgpack:"v"`
}

// TimeBounds restricts the validity window of a transaction.
type TimeBounds struct {
	Min int64 `json:"min" msgpack:"mn"`
	Max int64 `json:"max" msgpack:"mx"`
}

// TransactionDetails carries parent-transaction metadata embedded into every
// operation payload.
type TransactionDetails struct {
	Hash                  string      `json:"hash" msgpack:"h"`
	Fee                   int64       `json:"fee" msgpack:"f"`
	FeeCharged            int64       `json:"fee_charged,omitempty" msgpack:"fc"`
	MaxFee                int64       `json:"max_fee,omitempty" msgpack:"mf"`
	Source                string      `json:"source" msgpack:"s"`
	PagingToken           string      `json:"paging_token" msgpack:"p"`
	SourceAccountSequence string      `json:"source_account_sequence,omitempty" msgpack:"sq"`
	CreatedAt             string      `json:"created_at" msgpack:"ca"`
	Memo                  *Memo       `json:"memo,omitempty" msgpack:"m"`
	TimeBounds            *TimeBounds `json:"time_bounds,omitempty" msgpack:"tb"`
}

// Operation is a canonical operation extracted from a ledger transaction.
// Field applicability depends on the operation type; unused fields are empty.
type Operation struct {
	// ID is derived from the parent transaction paging token plus the
	// operation position, computed with arbitrary-precision arithmetic.
	ID    string `json:"id" msgpack:"id"`
	TypeI int    `json:"type_i" msgpack:"ti"`
	Type  string `json:"type" msgpack:"ty"`

	Account     string `json:"account,omitempty" msgpack:"ac"`
	Destination string `json:"destination,omitempty" msgpack:"de"`
	Amount      string `json:"amount,omitempty" msgpack:"am"`
	Asset       *Asset `json:"asset,omitempty" msgpack:"as"`
	// CounterAsset is the second asset leg of offers and path payments.
	CounterAsset *Asset `json:"counter_asset,omitempty" msgpack:"cs"`

	// Offer fields
	Price   string `json:"price,omitempty" msgpack:"pr"`
	OfferID string `json:"offer_id,omitempty" msgpack:"of"`

	// Path payment fields
	SourceMax string   `json:"source_max,omitempty" msgpack:"sm"`
	DestMin   string   `json:"dest_min,omitempty" msgpack:"dm"`
	Path      []*Asset `json:"path,omitempty" msgpack:"pa"`

	// Trust fields
	Limit     string `json:"limit,omitempty" msgpack:"li"`
	Authorize bool   `json:"authorize,omitempty" msgpack:"au"`

	// Manage data fields
	Name  string `json:"name,omitempty" msgpack:"na"`
	Value string `json:"value,omitempty" msgpack:"va"`

	// Bump sequence
	BumpTo string `json:"bump_to,omitempty" msgpack:"bt"`

	// Set options fields
	InflationDest string `json:"inflation_dest,omitempty" msgpack:"ind"`
	HomeDomain    string `json:"home_domain,omitempty" msgpack:"hd"`
	SignerKey     string `json:"signer_key,omitempty" msgpack:"sk"`
	SignerWeight  *int   `json:"signer_weight,omitempty" msgpack:"sw"`
	MasterWeight  *int   `json:"master_weight,omitempty" msgpack:"mw"`
	LowThreshold  *int   `json:"low_threshold,omitempty" msgpack:"lt"`
	MedThreshold  *int   `json:"med_threshold,omitempty" msgpack:"mt"`
	HighThreshold *int   `json:"high_threshold,omitempty" msgpack:"ht"`
	SetFlags      *int   `json:"set_flags,omitempty" msgpack:"sf"`
	ClearFlags    *int   `json:"clear_flags,omitempty" msgpack:"cf"`

	// Memo is the parent transaction memo value, duplicated here for
	// filter matching.
	Memo string `json:"-" msgpack:"me"`

	TransactionDetails *TransactionDetails `json:"transaction_details,omitempty" msgpack:"td"`
}

// ParsedTransaction is the canonical form of one ingested ledger transaction.
type ParsedTransaction struct {
	ID         string              `json:"id"`
	Details    *TransactionDetails `json:"details"`
	Operations []*Operation        `json:"operations"`
}
