package economy

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/webcash/go-webcash/internal/logger"
	"github.com/webcash/go-webcash/internal/webcash"
)

// Entry pairs a public claim-code hash with its declared amount.
type Entry struct {
	Hash   [32]byte
	Amount webcash.Amount
}

// Error strings here are part of the wire contract; clients match on them.
var (
	ErrInputsNotFound  = errors.New("input(s) not found")
	ErrWrongAmount     = errors.New("wrong amount")
	ErrReuse           = errors.New("reuse")
	ErrReusedPreimage  = errors.New("reused preimage")
	ErrOutputExists    = errors.New("output already exists")
	ErrWrongMining     = errors.New("outputs don't match allowed amount")
	ErrWrongSubsidy    = errors.New("subsidy doesn't match required amount")
	ErrBelowCurrent    = errors.New("proof of work doesn't meet current difficulty")
	ErrStaleCommitment = errors.New("committed difficulty is less than current difficulty")
)

// Replace atomically consumes the input outputs and creates the output
// outputs.  The caller has already verified that inputs and outputs parse,
// contain no duplicates, have positive amounts, and balance.  Concurrent
// calls with overlapping inputs serialize in the database; the loser fails
// the existence check and the ledger is untouched.
func (e *Economy) Replace(received time.Time, inputs, outputs []Entry) error {
	var totalIn webcash.Amount
	err := e.db.Transaction(func(tx *gorm.DB) error {
		// Inputs must exist as unspent outputs with the identical amount.
		for _, in := range inputs {
			var row UnspentOutput
			err := tx.Where("hash = ?", in.Hash[:]).First(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInputsNotFound
			}
			if err != nil {
				return err
			}
			if row.Amount != int64(in.Amount) {
				return ErrWrongAmount
			}
			totalIn += in.Amount
		}

		// Outputs must not exist yet.
		outHashes := make([][]byte, len(outputs))
		for i, out := range outputs {
			h := out.Hash
			outHashes[i] = h[:]
		}
		var n int64
		if err := tx.Model(&UnspentOutput{}).Where("hash IN ?", outHashes).Count(&n).Error; err != nil {
			return err
		}
		if n != 0 {
			return ErrReuse
		}

		// Record the inputs as spent.  The existence check above forbids
		// an already-spent input, so a conflict can only come from a hash
		// spent and re-created earlier; keep the original row.
		spent := make([]SpentHash, len(inputs))
		inHashes := make([][]byte, len(inputs))
		for i, in := range inputs {
			h := in.Hash
			spent[i] = SpentHash{Hash: h[:]}
			inHashes[i] = h[:]
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&spent).Error; err != nil {
			return err
		}

		if err := tx.Where("hash IN ?", inHashes).Delete(&UnspentOutput{}).Error; err != nil {
			return err
		}

		created := make([]UnspentOutput, len(outputs))
		for i, out := range outputs {
			h := out.Hash
			created[i] = UnspentOutput{Hash: h[:], Amount: int64(out.Amount)}
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		repl := Replacement{ReceivedNs: received.UnixNano()}
		if err := tx.Create(&repl).Error; err != nil {
			return err
		}
		auditIn := make([]ReplacementInput, len(inputs))
		for i, in := range inputs {
			h := in.Hash
			auditIn[i] = ReplacementInput{ReplacementID: repl.ID, Hash: h[:], Amount: int64(in.Amount)}
		}
		auditOut := make([]ReplacementOutput, len(outputs))
		for i, out := range outputs {
			h := out.Hash
			auditOut[i] = ReplacementOutput{ReplacementID: repl.ID, Hash: h[:], Amount: int64(out.Amount)}
		}
		if err := tx.Create(&auditIn).Error; err != nil {
			return err
		}
		return tx.Create(&auditOut).Error
	})
	if err != nil {
		return err
	}

	e.numReplace.Add(1)
	e.numUnspent.Add(uint64(len(outputs)) - uint64(len(inputs)))
	logger.Infof("Replaced %d input for %d output (total: %s). tx=%d utxos=%d",
		len(inputs), len(outputs), totalIn, e.numReplace.Load(), e.numUnspent.Load())
	return nil
}
