package wallet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoltPersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wallets.db")
	persister, err := NewBoltPersister(path, nil)
	require.NoError(t, err)

	reg := NewRegistry(persister)
	require.NoError(t, reg.Load(ctx))
	_, err = reg.SetWallet(ctx, "1", "0x1", "one")
	require.NoError(t, err)
	_, err = reg.SetWallet(ctx, "2", "0x2", "two")
	require.NoError(t, err)
	_, err = reg.ChangeWallet(ctx, "1", "0x11")
	require.NoError(t, err)
	require.NoError(t, persister.Close())

	reopened, err := NewBoltPersister(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	loaded := NewRegistry(reopened)
	require.NoError(t, loaded.Load(ctx))
	require.Equal(t, []Wallet{
		{ParticipantID: "1", DisplayName: "one", Address: "0x11"},
		{ParticipantID: "2", DisplayName: "two", Address: "0x2"},
	}, loaded.ListWallets())
}
