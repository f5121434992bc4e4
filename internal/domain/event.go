package domain

// MintEvent is one issuance journal entry. Corresponds to the mint_events
// table in ClickHouse.
type MintEvent struct {
	TokenID      string    `json:"token_id"`
	Workflow     Workflow  `json:"workflow"`
	OwnerID      AccountID `json:"owner_id"`
	CallerID     AccountID `json:"caller_id"`
	Deposit      uint64    `json:"deposit"`
	RequiredCost uint64    `json:"required_cost"`
	Refund       uint64    `json:"refund"`
	StorageDelta int64     `json:"storage_delta"`
	IssuedAt     int64     `json:"issued_at"` // Unix timestamp in seconds
}
