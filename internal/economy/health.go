package economy

import (
	"errors"

	"gorm.io/gorm"

	"github.com/webcash/go-webcash/internal/webcash"
)

// HealthStatus describes one queried claim code.  Spent is nil when the
// hash has never been seen, false while the output is unspent, true once it
// has been consumed.  Amount is the ledger's amount for unspent outputs and
// zero otherwise.
type HealthStatus struct {
	Spent  *bool
	Amount webcash.Amount
}

// HealthCheck reports the spent state of each queried public claim code.
// It is read-only and makes no coherence promise across entries.
func (e *Economy) HealthCheck(pubs []webcash.PublicWebcash) ([]HealthStatus, error) {
	out := make([]HealthStatus, len(pubs))
	for i, pub := range pubs {
		var row UnspentOutput
		err := e.db.Where("hash = ?", pub.Hash[:]).First(&row).Error
		if err == nil {
			spent := false
			out[i] = HealthStatus{Spent: &spent, Amount: webcash.Amount(row.Amount)}
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		var n int64
		if err := e.db.Model(&SpentHash{}).Where("hash = ?", pub.Hash[:]).Count(&n).Error; err != nil {
			return nil, err
		}
		if n != 0 {
			spent := true
			out[i] = HealthStatus{Spent: &spent}
		}
	}
	return out, nil
}
