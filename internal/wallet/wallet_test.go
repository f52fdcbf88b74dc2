package wallet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webcash/go-webcash/internal/webcash"
)

type fakeReplacer struct {
	calls [][2][]webcash.SecretWebcash
	err   error
}

func (f *fakeReplacer) Replace(ctx context.Context, inputs, outputs []webcash.SecretWebcash) error {
	f.calls = append(f.calls, [2][]webcash.SecretWebcash{inputs, outputs})
	return f.err
}

func newTestWallet(t *testing.T, replacer Replacer) (*Wallet, string) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "test_wallet")
	w, err := Open(base, replacer)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, base
}

func TestOpenCreatesBothFiles(t *testing.T) {
	_, base := newTestWallet(t, &fakeReplacer{})
	_, err := os.Stat(base + ".db")
	require.NoError(t, err)
	_, err = os.Stat(base + ".bak")
	require.NoError(t, err)
}

func TestOpenRejectsSecondHolder(t *testing.T) {
	_, base := newTestWallet(t, &fakeReplacer{})
	_, err := Open(base, &fakeReplacer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "in use by another process")
}

func TestOpenAcceptsEitherFileName(t *testing.T) {
	w, base := newTestWallet(t, &fakeReplacer{})
	require.NoError(t, w.AcceptTerms("terms v1"))
	require.NoError(t, w.Close())

	w2, err := Open(base+".bak", &fakeReplacer{})
	require.NoError(t, err)
	defer w2.Close()
	accepted, err := w2.AreTermsAccepted("terms v1")
	require.NoError(t, err)
	require.True(t, accepted)
}

func TestTermsAcceptance(t *testing.T) {
	w, _ := newTestWallet(t, &fakeReplacer{})

	have, err := w.HaveAcceptedTerms()
	require.NoError(t, err)
	require.False(t, have)

	require.NoError(t, w.AcceptTerms("terms v1"))
	// Idempotent.
	require.NoError(t, w.AcceptTerms("terms v1"))

	have, err = w.HaveAcceptedTerms()
	require.NoError(t, err)
	require.True(t, have)

	accepted, err := w.AreTermsAccepted("terms v1")
	require.NoError(t, err)
	require.True(t, accepted)
	accepted, err = w.AreTermsAccepted("terms v2")
	require.NoError(t, err)
	require.False(t, accepted)

	// Revisions coexist.
	require.NoError(t, w.AcceptTerms("terms v2"))
	var n int64
	require.NoError(t, w.db.Model(&Term{}).Count(&n).Error)
	require.Equal(t, int64(2), n)
}

func TestInsertSweepsIncomingSecret(t *testing.T) {
	replacer := &fakeReplacer{}
	w, base := newTestWallet(t, replacer)

	sec, err := webcash.NewSecret(webcash.Amount(19000000000000))
	require.NoError(t, err)
	require.NoError(t, w.Insert(context.Background(), sec, true))

	// One replacement: the incoming secret for a fresh change secret of
	// identical amount.
	require.Len(t, replacer.calls, 1)
	require.Equal(t, []webcash.SecretWebcash{sec}, replacer.calls[0][0])
	require.Len(t, replacer.calls[0][1], 1)
	change := replacer.calls[0][1][0]
	require.Equal(t, sec.Amount, change.Amount)
	require.NotEqual(t, sec.Secret, change.Secret)

	// The incoming secret is recorded as swept, the change as spendable.
	var rows []Secret
	require.NoError(t, w.db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, sec.Secret, rows[0].Secret)
	require.True(t, rows[0].Sweep)
	require.True(t, rows[0].Mine)
	require.Equal(t, change.Secret, rows[1].Secret)
	require.False(t, rows[1].Sweep)

	var outputs []Output
	require.NoError(t, w.db.Order("id").Find(&outputs).Error)
	require.Len(t, outputs, 2)
	require.True(t, outputs[0].Spent)
	require.False(t, outputs[1].Spent)
	changePub := change.Public()
	require.Equal(t, changePub.Hash[:], outputs[1].Hash)

	balance, err := w.Balance()
	require.NoError(t, err)
	require.Equal(t, sec.Amount, balance)

	// The recovery log saw both secrets, incoming first.
	data, err := os.ReadFile(base + ".bak")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], " mining "+sec.String())
	require.Contains(t, lines[1], " change "+change.String())
}

func TestInsertReceiveKind(t *testing.T) {
	w, base := newTestWallet(t, &fakeReplacer{})
	sec, err := webcash.NewSecret(webcash.Amount(100))
	require.NoError(t, err)
	require.NoError(t, w.Insert(context.Background(), sec, false))

	data, err := os.ReadFile(base + ".bak")
	require.NoError(t, err)
	require.Contains(t, string(data), " receive "+sec.String())
}

func TestInsertKeepsRowsWhenServerFails(t *testing.T) {
	replacer := &fakeReplacer{err: errors.New("server unreachable")}
	w, _ := newTestWallet(t, replacer)

	sec, err := webcash.NewSecret(webcash.Amount(500))
	require.NoError(t, err)
	err = w.Insert(context.Background(), sec, true)
	require.Error(t, err)

	// Both secrets stay recorded so a later run can replay the sweep,
	// but no value is considered spendable yet.
	var n int64
	require.NoError(t, w.db.Model(&Secret{}).Count(&n).Error)
	require.Equal(t, int64(2), n)

	var out Output
	require.NoError(t, w.db.First(&out).Error)
	require.False(t, out.Spent)

	balance, err := w.Balance()
	require.NoError(t, err)
	require.Equal(t, webcash.Amount(0), balance)
}
