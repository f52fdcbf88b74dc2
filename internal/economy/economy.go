package economy

import (
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/webcash/go-webcash/internal/webcash"
)

// Issuance schedule constants.  Mining amount and subsidy each halve every
// epoch; after epoch 63 both are zero.
const (
	InitialMiningAmount  = webcash.Amount(20000000000000) // 200000 webcash
	InitialSubsidyAmount = webcash.Amount(1000000000000)  // 10000 webcash
	ReportsPerEpoch      = 525000
	TargetInterval       = 10 * time.Second

	// InitialDifficulty is the difficulty target before any report has
	// been accepted.
	InitialDifficulty = 28

	// MinReportDifficulty is the anti-DoS floor: a mining report whose
	// hash has fewer leading zero bits than this is rejected regardless
	// of the current difficulty.
	MinReportDifficulty = 25

	// ReportsPerInterval is how often (in accepted reports) the
	// difficulty is reconsidered, and also the size of the look-back
	// window used for the comparison.
	ReportsPerInterval = 128
)

// Economy owns the authoritative ledger database plus lock-free cached
// counters.  The counters are updated after commit and are allowed to be
// read inconsistently relative to each other; the database is the truth.
type Economy struct {
	db      *gorm.DB
	genesis time.Time
	initial uint

	difficulty atomic.Uint32
	numReports atomic.Uint64
	numReplace atomic.Uint64
	numUnspent atomic.Uint64
}

// Options configures Open.
type Options struct {
	// Path of the SQLite database file.  ":memory:" works for tests.
	Path string
	// InitialDifficulty overrides the default starting difficulty.
	// Zero means InitialDifficulty.
	InitialDifficulty uint
	// Genesis overrides the genesis time recorded on first boot.  Zero
	// means time.Now().  Ignored when the database already has one.
	Genesis time.Time
}

// Open opens (creating if necessary) the economy database, migrates the
// schema, and loads the cached counters.
func Open(opts Options) (*Economy, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Error)}
	db, err := gorm.Open(sqlite.Open(opts.Path), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open economy database: %w", err)
	}
	// SQLite allows a single writer; funneling every request through one
	// connection lets the database serialize overlapping replacements
	// instead of surfacing busy errors.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	err = db.AutoMigrate(
		&MiningReport{},
		&Replacement{},
		&ReplacementInput{},
		&ReplacementOutput{},
		&UnspentOutput{},
		&SpentHash{},
		&ChainState{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate economy database: %w", err)
	}

	e := &Economy{db: db}

	var state ChainState
	if err := db.First(&state).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		genesis := opts.Genesis
		if genesis.IsZero() {
			genesis = time.Now()
		}
		state = ChainState{GenesisNs: genesis.UnixNano()}
		if err := db.Create(&state).Error; err != nil {
			return nil, err
		}
	}
	e.genesis = time.Unix(0, state.GenesisNs)

	initial := opts.InitialDifficulty
	if initial == 0 {
		initial = InitialDifficulty
	}
	e.initial = initial
	var last MiningReport
	switch err := db.Order("id DESC").First(&last).Error; {
	case err == nil:
		e.difficulty.Store(uint32(last.NextDifficulty))
		e.numReports.Store(last.ID)
	case errors.Is(err, gorm.ErrRecordNotFound):
		e.difficulty.Store(uint32(initial))
	default:
		return nil, err
	}

	var n int64
	if err := db.Model(&Replacement{}).Count(&n).Error; err != nil {
		return nil, err
	}
	e.numReplace.Store(uint64(n))
	if err := db.Model(&UnspentOutput{}).Count(&n).Error; err != nil {
		return nil, err
	}
	e.numUnspent.Store(uint64(n))

	return e, nil
}

// Close releases the underlying database connection.
func (e *Economy) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Genesis returns the time the economy started.
func (e *Economy) Genesis() time.Time { return e.genesis }

// Difficulty returns the cached current difficulty target.
func (e *Economy) Difficulty() uint { return uint(e.difficulty.Load()) }

// NumReports returns the cached count of accepted mining reports.
func (e *Economy) NumReports() uint64 { return e.numReports.Load() }

// Epoch computes the halving epoch for a given report count.
func Epoch(numReports uint64) uint64 { return numReports / ReportsPerEpoch }

// MiningAmount returns the total value a single mining report issues, as a
// pure function of the report count.
func MiningAmount(numReports uint64) webcash.Amount {
	epoch := Epoch(numReports)
	if epoch > 63 {
		return 0
	}
	return InitialMiningAmount >> epoch
}

// SubsidyAmount returns the portion of the mining amount surrendered to the
// server operator.
func SubsidyAmount(numReports uint64) webcash.Amount {
	epoch := Epoch(numReports)
	if epoch > 63 {
		return 0
	}
	return InitialSubsidyAmount >> epoch
}

// Stats is a coherent snapshot of the economy.  Circulation totals can
// exceed int64 range late in the schedule, so they are big integers.
type Stats struct {
	Timestamp           time.Time
	TotalCirculation    *big.Int
	ExpectedCirculation *big.Int
	NumReports          uint64
	NumReplace          uint64
	NumUnspent          uint64
	MiningAmount        webcash.Amount
	SubsidyAmount       webcash.Amount
	Epoch               uint64
	Difficulty          uint
}

// Stats assembles a snapshot.  The (num_reports, difficulty) pair is
// re-read until stable so the two cached values are coherent with each
// other; the remaining counters are best-effort.
func (e *Economy) Stats(now time.Time) Stats {
	var s Stats
	s.Timestamp = now
	for {
		s.NumReports = e.numReports.Load()
		s.Difficulty = uint(e.difficulty.Load())
		if s.NumReports == e.numReports.Load() {
			break
		}
	}
	s.NumReplace = e.numReplace.Load()
	s.NumUnspent = e.numUnspent.Load()

	s.TotalCirculation = circulationAfter(s.NumReports)
	elapsed := now.Sub(e.genesis)
	expectedReports := uint64(0)
	if elapsed > 0 {
		expectedReports = uint64(elapsed / TargetInterval)
	}
	s.ExpectedCirculation = circulationAfter(expectedReports)

	s.Epoch = Epoch(s.NumReports)
	s.MiningAmount = MiningAmount(s.NumReports)
	s.SubsidyAmount = SubsidyAmount(s.NumReports)
	return s
}

// circulationAfter sums issuance over count reports, piecewise over the
// halving epochs.
func circulationAfter(count uint64) *big.Int {
	total := new(big.Int)
	value := int64(InitialMiningAmount)
	for count > ReportsPerEpoch && value > 0 {
		epochTotal := new(big.Int).Mul(big.NewInt(value), big.NewInt(ReportsPerEpoch))
		total.Add(total, epochTotal)
		count -= ReportsPerEpoch
		value >>= 1
	}
	rest := new(big.Int).Mul(big.NewInt(value), new(big.Int).SetUint64(count))
	total.Add(total, rest)
	return total
}

// Ratio is total/expected circulation as a float, with 1.0 substituted while
// either side is still zero to avoid transient errors on startup.
func (s Stats) Ratio() float64 {
	if s.TotalCirculation.Sign() <= 0 || s.ExpectedCirculation.Sign() <= 0 {
		return 1.0
	}
	t, _ := new(big.Float).SetInt(s.TotalCirculation).Float64()
	x, _ := new(big.Float).SetInt(s.ExpectedCirculation).Float64()
	return t / x
}
