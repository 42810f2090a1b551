package journal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupJournal(t *testing.T, clock func() time.Time) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	j, err := Open("sqlite", dsn, WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	now := base
	j := setupJournal(t, func() time.Time { return now })

	require.NoError(t, j.Record(ctx, Entry{Kind: "genre_selected", ParticipantID: "42", BattleID: "7", Outcome: OutcomeOK}))
	now = base.Add(time.Minute)
	require.NoError(t, j.Record(ctx, Entry{Kind: "vote_cast", ParticipantID: "43", BattleID: "7", Outcome: OutcomeInfo, Detail: "already_voted"}))
	now = base.Add(2 * time.Minute)
	require.NoError(t, j.Record(ctx, Entry{Kind: "vote_cast", ParticipantID: "44", BattleID: "8", Outcome: OutcomeOK}))

	all, err := j.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "genre_selected", all[0].Kind)
	require.NotEqual(t, uuid.Nil, all[0].ID)

	votes, err := j.List(ctx, Filter{Kind: "vote_cast", BattleID: "7"})
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.Equal(t, "already_voted", votes[0].Detail)

	windowed, err := j.List(ctx, Filter{Since: base.Add(30 * time.Second), Until: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	require.Equal(t, "43", windowed[0].ParticipantID)

	limited, err := j.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestExportParquet(t *testing.T) {
	ctx := context.Background()
	j := setupJournal(t, time.Now)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record(ctx, Entry{Kind: "set_wallet", ParticipantID: fmt.Sprint(i), Outcome: OutcomeOK}))
	}
	path := filepath.Join(t.TempDir(), "exports", "journal.parquet")
	n, err := j.ExportParquet(ctx, path, Filter{})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, []byte("PAR1")))
	require.True(t, bytes.HasSuffix(raw, []byte("PAR1")))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
	_, err = Open("sqlite", "")
	require.Error(t, err)
}
