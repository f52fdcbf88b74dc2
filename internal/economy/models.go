package economy

// The ledger schema.  Rows in every table except UnspentOutput are
// append-only; an unspent output is deleted in the same transaction that
// records its hash as spent.

// MiningReport is one accepted proof-of-work report.  The row id doubles as
// the report count, since reports are never deleted.
type MiningReport struct {
	ID         uint64 `gorm:"primaryKey"`
	ReceivedNs int64  `gorm:"index"`
	Preimage   string `gorm:"uniqueIndex"` // base64, as submitted
	Difficulty uint8
	// NextDifficulty is the difficulty target published after this report
	// was accepted.
	NextDifficulty uint8
	// AggregateWork accumulates 2^difficulty per report.  float64 loses
	// precision past difficulty 53; the value is display-only and never
	// used for validation.
	AggregateWork float64
}

// Replacement is one accepted atomic input/output swap.
type Replacement struct {
	ID         uint64 `gorm:"primaryKey"`
	ReceivedNs int64  `gorm:"index"`
}

// ReplacementInput is an audit-log row for one consumed input.
type ReplacementInput struct {
	ID            uint64 `gorm:"primaryKey"`
	ReplacementID uint64 `gorm:"index"`
	Hash          []byte `gorm:"index;size:32"`
	Amount        int64
}

// ReplacementOutput is an audit-log row for one created output.
type ReplacementOutput struct {
	ID            uint64 `gorm:"primaryKey"`
	ReplacementID uint64 `gorm:"index"`
	Hash          []byte `gorm:"index;size:32"`
	Amount        int64
}

// UnspentOutput maps a public claim-code hash to its unspent amount.
type UnspentOutput struct {
	ID     uint64 `gorm:"primaryKey"`
	Hash   []byte `gorm:"uniqueIndex;size:32"`
	Amount int64
}

// SpentHash records every hash ever consumed as an input, so health checks
// can answer "spent" even after the unspent row is gone.
type SpentHash struct {
	ID   uint64 `gorm:"primaryKey"`
	Hash []byte `gorm:"uniqueIndex;size:32"`
}

// ChainState is a single-row table holding values fixed at first boot.
type ChainState struct {
	ID        uint64 `gorm:"primaryKey"`
	GenesisNs int64
}
