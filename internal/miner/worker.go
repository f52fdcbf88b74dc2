package miner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"time"

	"github.com/webcash/go-webcash/internal/client"
	"github.com/webcash/go-webcash/internal/logger"
	"github.com/webcash/go-webcash/internal/webcash"
)

const settingsFetchInterval = 15 * time.Second

func speedString(attempts int64, elapsed time.Duration) string {
	speed := float64(attempts) / elapsed.Seconds()
	switch {
	case speed < 2e3:
		return fmt.Sprintf("%.2f hps", speed)
	case speed < 2e6:
		return fmt.Sprintf("%.2f khps", speed/1e3)
	case speed < 2e9:
		return fmt.Sprintf("%.2f Mhps", speed/1e6)
	case speed < 2e12:
		return fmt.Sprintf("%.2f Ghps", speed/1e9)
	}
	return fmt.Sprintf("%.2f Thps", speed/1e12)
}

// expectString estimates how long a solution at the given difficulty will
// take at the observed hash rate.
func expectString(attempts int64, elapsed time.Duration, difficulty uint) string {
	speed := math.Max(1.0, float64(attempts)/elapsed.Seconds())
	sec := int(math.Round(math.Ldexp(1, int(difficulty)) / speed))
	min := sec / 60
	hr := min / 60
	day := hr / 24
	var res string
	if day > 0 {
		res += fmt.Sprintf("%dd ", day)
	}
	if hr > 0 {
		res += fmt.Sprintf("%dh ", hr%24)
	}
	if min > 0 {
		res += fmt.Sprintf("%dm ", min%60)
	}
	if sec > 0 {
		res += fmt.Sprintf("%ds", sec%60)
	}
	return res
}

// fetchSettings pulls the current protocol settings and reports the hash
// rate accumulated since the previous fetch.
func (m *Miner) fetchSettings(ctx context.Context, firstRun bool) error {
	settings, err := m.client.ProtocolSettings(ctx)
	if err != nil {
		return err
	}
	if !firstRun {
		attempts := m.attempts.Swap(0)
		logger.Infof("server says difficulty=%d ratio=%g speed=%s expect=%s",
			settings.Difficulty, settings.Ratio,
			speedString(attempts, settingsFetchInterval),
			expectString(attempts, settingsFetchInterval, settings.Difficulty))
	}
	m.difficulty.Store(uint32(settings.Difficulty))
	m.miningAmount.Store(int64(settings.MiningAmount))
	m.subsidyAmount.Store(int64(settings.SubsidyAmount))
	return nil
}

// appendLine appends one line to a log file used for manual recovery, and
// flushes it before returning.
func appendLine(path, line string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		logger.Errorf("unable to open %s: %v", path, err)
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, line); err != nil {
		logger.Errorf("unable to write %s: %v", path, err)
		return
	}
	f.Sync()
}

func (m *Miner) orphan(soln Solution, bits uint) {
	appendLine(m.cfg.OrphanLog, fmt.Sprintf("%s %x %s difficulty=%d",
		soln.Preimage, soln.Hash, soln.Keep, bits))
}

// submit sends one solution to the server.  It reports whether a transport
// failure occurred, in which case the caller holds on to the solution and
// retries later; solutions never reach the server out of production order.
func (m *Miner) submit(ctx context.Context, soln Solution) (retry bool) {
	// The difficulty may have moved against us while the solution sat in
	// the queue.
	current := uint(m.difficulty.Load())
	bits := webcash.ApparentDifficulty(soln.Hash)
	if bits < current {
		logger.Errorf("Stale mining report detected (%d < %d); skipping", bits, current)
		m.orphan(soln, bits)
		return false
	}

	work := new(big.Int).SetBytes(soln.Hash[:]).String()
	result, err := m.client.MiningReport(ctx, soln.Preimage, work)
	if err != nil {
		var reject *client.RejectError
		if !errors.As(err, &reject) {
			logger.Errorf("invalid response to mining report: %v", err)
			logger.Error("Possible transient error, or server timeout?  Waiting to re-attempt.")
			return true
		}
		if !reject.Benign() {
			// Server error, or the difficulty changed against us.
			logger.Errorf("mining report rejected: %v", reject)
			m.orphan(soln, bits)
			return false
		}
		// The server already has this webcash; claim it as if accepted.
	}

	if result.HasDifficulty {
		old := uint(m.difficulty.Swap(uint32(result.DifficultyTarget)))
		if old != result.DifficultyTarget {
			logger.Infof("Difficulty adjustment occured! Server says difficulty=%d", result.DifficultyTarget)
		}
	}

	if err := m.wallet.Insert(ctx, soln.Keep, true); err != nil {
		// The wallet could not take custody; save the claim code where
		// the user can recover it by hand.
		logger.Errorf("unable to insert webcash into wallet: %v", err)
		appendLine(m.cfg.WebcashLog, soln.Keep.String())
	}
	return false
}

// submissionWorker drains the solution queue and keeps the protocol
// settings fresh.  A solution that failed on a transport error is retried
// ahead of newer solutions after the next settings fetch.
func (m *Miner) submissionWorker(ctx context.Context) error {
	ticker := time.NewTicker(settingsFetchInterval)
	defer ticker.Stop()

	var pending *Solution
	for {
		if pending == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case soln := <-m.solutions:
				if m.submit(ctx, soln) {
					pending = &soln
				}
			case <-ticker.C:
				if err := m.fetchSettings(ctx, false); err != nil {
					logger.Errorf("unable to fetch protocol settings: %v", err)
				}
			}
			continue
		}

		// Retrying a held solution; do not accept new work until it is
		// resolved, to preserve submission order.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.fetchSettings(ctx, false); err != nil {
				logger.Errorf("unable to fetch protocol settings: %v", err)
				continue
			}
			if !m.submit(ctx, *pending) {
				pending = nil
			}
		}
	}
}
