package economy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webcash/go-webcash/internal/webcash"
)

// fund inserts an unspent output directly into the ledger and returns its
// entry.
func fund(t *testing.T, e *Economy, amount webcash.Amount) Entry {
	t.Helper()
	sec, err := webcash.NewSecret(amount)
	require.NoError(t, err)
	pub := sec.Public()
	require.NoError(t, e.db.Create(&UnspentOutput{Hash: pub.Hash[:], Amount: int64(amount)}).Error)
	e.numUnspent.Add(1)
	return Entry{Hash: pub.Hash, Amount: amount}
}

func newEntry(amount webcash.Amount) Entry {
	sec, err := webcash.NewSecret(amount)
	if err != nil {
		panic(err)
	}
	return Entry{Hash: sec.Public().Hash, Amount: amount}
}

func TestReplaceSplitsValue(t *testing.T) {
	e := newTestEconomy(t, Options{})
	in := fund(t, e, 10000000000)
	out1 := newEntry(4000000000)
	out2 := newEntry(6000000000)

	require.NoError(t, e.Replace(time.Now(), []Entry{in}, []Entry{out1, out2}))

	// The input is spent, the outputs live.
	status, err := e.HealthCheck([]webcash.PublicWebcash{
		{Amount: in.Amount, Hash: in.Hash},
		{Amount: out1.Amount, Hash: out1.Hash},
		{Amount: out2.Amount, Hash: out2.Hash},
	})
	require.NoError(t, err)
	require.NotNil(t, status[0].Spent)
	require.True(t, *status[0].Spent)
	require.NotNil(t, status[1].Spent)
	require.False(t, *status[1].Spent)
	require.Equal(t, out1.Amount, status[1].Amount)
	require.NotNil(t, status[2].Spent)
	require.False(t, *status[2].Spent)
	require.Equal(t, out2.Amount, status[2].Amount)

	// Replacing the same input again fails and changes nothing.
	require.ErrorIs(t, e.Replace(time.Now(), []Entry{in}, []Entry{newEntry(in.Amount)}), ErrInputsNotFound)

	// One replacement, with full audit rows.
	var n int64
	require.NoError(t, e.db.Model(&Replacement{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
	require.NoError(t, e.db.Model(&ReplacementInput{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
	require.NoError(t, e.db.Model(&ReplacementOutput{}).Count(&n).Error)
	require.Equal(t, int64(2), n)

	s := e.Stats(time.Now())
	require.Equal(t, uint64(1), s.NumReplace)
	require.Equal(t, uint64(2), s.NumUnspent)
}

func TestReplaceUnknownInput(t *testing.T) {
	e := newTestEconomy(t, Options{})
	in := newEntry(100)
	err := e.Replace(time.Now(), []Entry{in}, []Entry{newEntry(100)})
	require.ErrorIs(t, err, ErrInputsNotFound)
}

func TestReplaceWrongAmount(t *testing.T) {
	e := newTestEconomy(t, Options{})
	in := fund(t, e, 100)
	claimed := Entry{Hash: in.Hash, Amount: 200}
	err := e.Replace(time.Now(), []Entry{claimed}, []Entry{newEntry(200)})
	require.ErrorIs(t, err, ErrWrongAmount)

	// The failed attempt must not have spent the input.
	status, err := e.HealthCheck([]webcash.PublicWebcash{{Amount: in.Amount, Hash: in.Hash}})
	require.NoError(t, err)
	require.NotNil(t, status[0].Spent)
	require.False(t, *status[0].Spent)
}

func TestReplaceRejectsExistingOutput(t *testing.T) {
	e := newTestEconomy(t, Options{})
	in := fund(t, e, 100)
	existing := fund(t, e, 100)
	err := e.Replace(time.Now(), []Entry{in}, []Entry{existing})
	require.ErrorIs(t, err, ErrReuse)
}

func TestReplaceConcurrentDoubleSpend(t *testing.T) {
	e := newTestEconomy(t, Options{})
	in := fund(t, e, 500)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.Replace(time.Now(), []Entry{in}, []Entry{newEntry(500)})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, ErrInputsNotFound)
		}
	}
	require.Equal(t, 1, won)

	var n int64
	require.NoError(t, e.db.Model(&UnspentOutput{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
}
