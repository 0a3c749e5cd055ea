package job_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthurfmn/tsh/internal/job"
)

func TestTableAddAssignsIncrementingJIDs(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	tbl := job.New()

	j1, err := tbl.Add(100, job.BG, "/bin/sleep 5 &")
	require.NoError(err)
	require.Equal(1, j1.JID)

	j2, err := tbl.Add(101, job.FG, "/bin/echo hi")
	require.NoError(err)
	require.Equal(2, j2.JID)
}

func TestTableAddWrapsJIDAfterMaxJobs(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	tbl := job.New()
	for i := 0; i < job.MaxJobs; i++ {
		_, err := tbl.Add(1000+i, job.BG, "cmd")
		require.NoError(err)
	}

	// table is now full
	_, err := tbl.Add(9999, job.BG, "cmd")
	require.ErrorIs(err, job.ErrTableFull)

	// free one slot, the JID counter should have wrapped to 1 by now
	tbl.Delete(1000)
	j, err := tbl.Add(2000, job.BG, "cmd")
	require.NoError(err)
	require.Equal(1, j.JID)
}

func TestTableDeleteResetsNextJIDToMaxPlusOne(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	assert := assert.New(t)

	tbl := job.New()
	_, err := tbl.Add(1, job.BG, "a")
	require.NoError(err)
	_, err = tbl.Add(2, job.BG, "b")
	require.NoError(err)
	_, err = tbl.Add(3, job.BG, "c")
	require.NoError(err)

	require.True(tbl.Delete(2)) // frees jid 2, leaves jid 1 and 3 live

	j, err := tbl.Add(4, job.BG, "d")
	require.NoError(err)
	assert.Equal(4, j.JID) // nextJID reset to max(1,3)+1 = 4, not 3
}

func TestTableFGPIDUniqueness(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	tbl := job.New()
	_, err := tbl.Add(1, job.BG, "a")
	require.NoError(err)
	require.Equal(0, tbl.FGPID())

	_, err = tbl.Add(2, job.FG, "b")
	require.NoError(err)
	require.Equal(2, tbl.FGPID())
}

func TestTableFindByPIDAndJID(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	tbl := job.New()
	added, err := tbl.Add(42, job.ST, "/bin/sleep 10")
	require.NoError(err)

	byPID, ok := tbl.LockedFindByPID(42)
	require.True(ok)
	require.Equal(*added, byPID)

	byJID, ok := tbl.LockedFindByJID(added.JID)
	require.True(ok)
	require.Equal(*added, byJID)

	_, ok = tbl.LockedFindByPID(0)
	require.False(ok)

	_, ok = tbl.LockedFindByJID(0)
	require.False(ok)
}

func TestFormatMatchesJobsLayout(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	j := job.Job{JID: 1, PID: 4242, State: job.BG, CmdLine: "/bin/sleep 5 &"}
	require.Equal("[1] (4242) Running /bin/sleep 5 &", job.Format(j))

	j.State = job.FG
	require.Equal("[1] (4242) Foreground /bin/sleep 5 &", job.Format(j))

	j.State = job.ST
	require.Equal("[1] (4242) Stopped /bin/sleep 5 &", job.Format(j))
}
