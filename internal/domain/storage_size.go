package domain

// Logical storage cost model for metering. Every backend accounts with the
// same byte model, so the footprint delta of a call is deterministic across
// the in-memory and PostgreSQL registries.
const (
	// StorageBytesPerTokenRecord is the fixed ledger overhead for one entry
	// across the owner, metadata and approval maps.
	StorageBytesPerTokenRecord = 64

	// StorageBytesPerIndexEntry is the fixed overhead for one owner-index
	// entry.
	StorageBytesPerIndexEntry = 40
)

// StorageBytes returns the logical footprint of the token record: identity,
// owner and metadata fields plus the fixed per-record overhead. Approval
// entries are empty at mint time and not counted here.
func (t *Token) StorageBytes() int64 {
	n := int64(len(t.TokenID)) + int64(len(t.OwnerID)) + StorageBytesPerTokenRecord
	if t.Metadata != nil {
		n += t.Metadata.storageBytes()
	}
	return n
}

// IndexEntryStorageBytes returns the logical footprint of one owner-index
// entry mapping owner to token id.
func IndexEntryStorageBytes(owner AccountID, tokenID string) int64 {
	return int64(len(owner)) + int64(len(tokenID)) + StorageBytesPerIndexEntry
}

func (m *TokenMetadata) storageBytes() int64 {
	return int64(len(m.Title) + len(m.Description) +
		len(m.Media) + len(m.MediaHash) +
		len(m.Reference) + len(m.ReferenceHash))
}
