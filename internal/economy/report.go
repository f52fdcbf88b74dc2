package economy

import (
	"errors"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/webcash/go-webcash/internal/logger"
	"github.com/webcash/go-webcash/internal/webcash"
)

// MiningReportRequest is a pre-validated mining report.  The caller has
// already checked the proof of work against the preimage, decoded the
// payload, verified the claim codes parse and carry positive amounts, and
// summed the totals.  What remains here is everything that depends on
// ledger state.
type MiningReportRequest struct {
	// PreimageB64 is the submitted preimage, kept in its base64 form for
	// the uniqueness constraint.
	PreimageB64 string
	// Webcash holds every output the report creates, server subsidy
	// included.
	Webcash []Entry
	// WebcashTotal is the sum of all outputs; SubsidyTotal the sum of the
	// outputs surrendered to the server operator.
	WebcashTotal  webcash.Amount
	SubsidyTotal  webcash.Amount
	HasDifficulty bool
	// CommittedDifficulty is the difficulty field inside the preimage,
	// meaningful only when HasDifficulty is set.
	CommittedDifficulty uint
	// Bits is the apparent difficulty of the preimage hash.
	Bits uint
}

// ProcessMiningReport validates a mining report against current ledger
// state and, if acceptable, issues its outputs.  It returns the difficulty
// target in force after the report, which changes only on retarget
// boundaries.
func (e *Economy) ProcessMiningReport(received time.Time, req *MiningReportRequest) (uint, error) {
	var next uint
	var count uint64
	err := e.db.Transaction(func(tx *gorm.DB) error {
		current := e.initial
		var aggregate float64
		var last MiningReport
		switch err := tx.Order("id DESC").First(&last).Error; {
		case err == nil:
			current = uint(last.NextDifficulty)
			count = last.ID
			aggregate = last.AggregateWork
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		if req.HasDifficulty && req.CommittedDifficulty < current {
			return ErrStaleCommitment
		}
		if req.Bits < current {
			return ErrBelowCurrent
		}
		if req.WebcashTotal != MiningAmount(count) {
			return ErrWrongMining
		}
		if req.SubsidyTotal != SubsidyAmount(count) {
			return ErrWrongSubsidy
		}

		var n int64
		if err := tx.Model(&MiningReport{}).Where("preimage = ?", req.PreimageB64).Count(&n).Error; err != nil {
			return err
		}
		if n != 0 {
			return ErrReusedPreimage
		}

		hashes := make([][]byte, len(req.Webcash))
		for i, out := range req.Webcash {
			h := out.Hash
			hashes[i] = h[:]
		}
		if err := tx.Model(&UnspentOutput{}).Where("hash IN ?", hashes).Count(&n).Error; err != nil {
			return err
		}
		if n != 0 {
			return ErrOutputExists
		}

		count++
		next = current
		if count%ReportsPerInterval == 0 {
			d, err := e.retarget(tx, received, count, current)
			if err != nil {
				return err
			}
			next = d
		}

		report := MiningReport{
			ID:             count,
			ReceivedNs:     received.UnixNano(),
			Preimage:       req.PreimageB64,
			Difficulty:     uint8(current),
			NextDifficulty: uint8(next),
			AggregateWork:  aggregate + math.Ldexp(1, int(current)),
		}
		if err := tx.Create(&report).Error; err != nil {
			return err
		}

		created := make([]UnspentOutput, len(req.Webcash))
		for i, out := range req.Webcash {
			h := out.Hash
			created[i] = UnspentOutput{Hash: h[:], Amount: int64(out.Amount)}
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return 0, err
	}

	old := uint(e.difficulty.Swap(uint32(next)))
	e.numReports.Store(count)
	e.numUnspent.Add(uint64(len(req.Webcash)))
	if next != old {
		logger.Infof("Difficulty adjustment: %d -> %d at report %d", old, next, count)
	}
	return next, nil
}

// retarget decides the difficulty for the interval that begins after report
// number count.  It compares the time the last window of reports actually
// took against the schedule, and circulation against the amount the
// schedule says should exist, moving one step only when both measures
// agree on the direction.
func (e *Economy) retarget(tx *gorm.DB, received time.Time, count uint64, current uint) (uint, error) {
	// The new report is not inserted yet, so the window start sits at
	// offset lookback-1 counting back from the newest row.  The very
	// first interval has one report fewer to look back over.
	lookback := uint64(ReportsPerInterval)
	if count == ReportsPerInterval {
		lookback--
	}
	var first MiningReport
	if err := tx.Order("id DESC").Offset(int(lookback - 1)).First(&first).Error; err != nil {
		return 0, err
	}

	actual := received.Sub(time.Unix(0, first.ReceivedNs))
	expected := time.Duration(lookback) * TargetInterval

	total := circulationAfter(count)
	elapsed := received.Sub(e.genesis)
	expectedReports := uint64(0)
	if elapsed > 0 {
		expectedReports = uint64(elapsed / TargetInterval)
	}
	expectedCirc := circulationAfter(expectedReports)

	next := current
	if actual <= expected && expectedCirc.Cmp(total) <= 0 {
		next++
	}
	if expected <= actual && total.Cmp(expectedCirc) <= 0 && next > 0 {
		next--
	}
	return next, nil
}
