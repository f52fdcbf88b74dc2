// Package miner implements the proof-of-work search and the submission
// pipeline that turns accepted solutions into wallet balances.
package miner

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webcash/go-webcash/internal/client"
	"github.com/webcash/go-webcash/internal/logger"
	"github.com/webcash/go-webcash/internal/webcash"
)

// nonces holds the base64 encoding of every three-digit decimal string
// "000" through "999", four output characters each.  Appending two entries
// plus the terminator to a 64-byte-aligned prefix varies one million
// candidates per midstate without re-encoding any base64.
var nonces [4000]byte

// noncesFinal closes the JSON object: base64("}").
const noncesFinal = "fQ=="

func init() {
	for i := 0; i < 1000; i++ {
		base64.StdEncoding.Encode(nonces[4*i:4*i+4], []byte(fmt.Sprintf("%03d", i)))
	}
}

// Solution is a found proof of work on its way to the server.
type Solution struct {
	Hash     [32]byte
	Preimage string
	Keep     webcash.SecretWebcash
}

// Inserter is the wallet operation the miner depends on.
type Inserter interface {
	Insert(ctx context.Context, sec webcash.SecretWebcash, mine bool) error
}

type Config struct {
	Workers       int
	MaxDifficulty uint
	WebcashLog    string
	OrphanLog     string
}

type Miner struct {
	cfg    Config
	client *client.Client
	wallet Inserter

	difficulty    atomic.Uint32
	miningAmount  atomic.Int64
	subsidyAmount atomic.Int64
	attempts      atomic.Int64

	solutions chan Solution
}

func New(cfg Config, cl *client.Client, w Inserter) *Miner {
	m := &Miner{
		cfg:       cfg,
		client:    cl,
		wallet:    w,
		solutions: make(chan Solution, 32),
	}
	// Conservative placeholders until the first settings fetch.
	m.difficulty.Store(16)
	return m
}

// Run mines with the configured number of workers until the context is
// canceled.  The first settings fetch happens before any worker starts so
// that no work is performed against a guessed difficulty.
func (m *Miner) Run(ctx context.Context) error {
	if err := m.fetchSettings(ctx, true); err != nil {
		return fmt.Errorf("unable to fetch protocol settings: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.submissionWorker(ctx) })
	for i := 0; i < m.cfg.Workers; i++ {
		g.Go(func() error { return m.miningWorker(ctx) })
	}
	return g.Wait()
}

// buildPrefix renders the constant part of the preimage document.  The
// text is padded with spaces to a multiple of 48 bytes and terminated with
// the leading '1' of the nonce, so its base64 encoding lands exactly on a
// SHA-256 block boundary.
func buildPrefix(keep, subsidy webcash.SecretWebcash, difficulty uint, now time.Time) string {
	timestamp := strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', 6, 64)
	subsidyStr := subsidy.String()
	prefix := `{"legalese": {"terms": true}, "webcash": ["` + keep.String() + `", "` + subsidyStr +
		`"], "subsidy": ["` + subsidyStr + `"], "difficulty": ` + strconv.FormatUint(uint64(difficulty), 10) +
		`, "timestamp": ` + timestamp + `, "nonce": `
	padded := 48 * (1 + len(prefix)/48)
	prefix += strings.Repeat(" ", padded-len(prefix)-1) + "1"
	return prefix
}

// searchBlock hashes all one million nonce candidates against a midstate
// and returns the first tail that meets the difficulty.
func (m *Miner) searchBlock(ctx context.Context, mid *webcash.Midstate, difficulty uint) (string, [32]byte, bool) {
	var tail [12]byte
	copy(tail[8:], noncesFinal)
	for i := 0; i < 1000; i++ {
		if ctx.Err() != nil {
			return "", [32]byte{}, false
		}
		copy(tail[0:4], nonces[4*i:])
		for j := 0; j < 1000; j++ {
			copy(tail[4:8], nonces[4*j:])
			hash := mid.Sum(tail[:])
			m.attempts.Add(1)
			// Nearly every candidate fails in the first two bytes;
			// only survivors pay for the full difficulty check.
			if hash[0] == 0 && hash[1] == 0 && webcash.CheckProofOfWork(hash, difficulty) {
				return string(tail[:]), hash, true
			}
		}
	}
	return "", [32]byte{}, false
}

func (m *Miner) miningWorker(ctx context.Context) error {
	for ctx.Err() == nil {
		difficulty := uint(m.difficulty.Load())
		if difficulty > m.cfg.MaxDifficulty {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		miningAmount := webcash.Amount(m.miningAmount.Load())
		subsidyAmount := webcash.Amount(m.subsidyAmount.Load())
		keep, err := webcash.NewSecret(miningAmount - subsidyAmount)
		if err != nil {
			return err
		}
		subsidy, err := webcash.NewSecret(subsidyAmount)
		if err != nil {
			return err
		}

		prefixB64 := base64.StdEncoding.EncodeToString(
			[]byte(buildPrefix(keep, subsidy, difficulty, time.Now())))
		mid, err := webcash.NewMidstate([]byte(prefixB64))
		if err != nil {
			return err
		}

		tail, hash, found := m.searchBlock(ctx, mid, difficulty)
		if !found {
			continue
		}
		work := prefixB64 + tail
		logger.Infof("GOT SOLUTION!!! %s 0x%x %s", work, hash, keep)
		select {
		case m.solutions <- Solution{Hash: hash, Preimage: work, Keep: keep}:
		case <-ctx.Done():
		}
		// Fresh secrets next round, so back-to-back solutions never
		// share a claim code.
	}
	return ctx.Err()
}
