package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneJobsKeepingRecent_KeepsOnlyNewest(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	for i, hash := range []string{"h1", "h2", "h3", "h4"} {
		_, err := c.InsertRunningJob(ctx, "dev:1", hash, int64(1000+i))
		require.NoError(t, err)
	}

	deleted, err := c.PruneJobsKeepingRecent(ctx, "dev:1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	jobs, err := c.ListJobsForFile(ctx, "dev:1")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, "h4", jobs[0].ContentHash)
	assert.Equal(t, "h3", jobs[1].ContentHash)
}

func TestPruneJobsKeepingRecent_NoOpWhenUnderLimit(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	_, err := c.InsertRunningJob(ctx, "dev:1", "h1", 1000)
	require.NoError(t, err)

	deleted, err := c.PruneJobsKeepingRecent(ctx, "dev:1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestDeleteFailedJobsOlderThan_OnlyDeletesFailedAndOld(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.MarkJobFailed(ctx, "dev:1", "h1", "boom", 100))
	require.NoError(t, c.MarkJobFailed(ctx, "dev:2", "h2", "boom", 9000))
	_, err := c.InsertRunningJob(ctx, "dev:3", "h3", 50)
	require.NoError(t, err)

	n, err := c.DeleteFailedJobsOlderThan(ctx, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := c.ListJobsForFile(ctx, "dev:3")
	require.NoError(t, err)
	assert.Len(t, remaining, 1) // running job untouched
}

func TestListTombstonedBefore_OnlyDeletedAndOld(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertFile(ctx, File{FileUID: "dev:1", Realpath: "/a.txt", Status: FileStatusActive}, 1000))
	require.NoError(t, c.MarkDeleted(ctx, "dev:1", 100))

	require.NoError(t, c.UpsertFile(ctx, File{FileUID: "dev:2", Realpath: "/b.txt", Status: FileStatusActive}, 1000))
	require.NoError(t, c.MarkDeleted(ctx, "dev:2", 9000))

	uids, err := c.ListTombstonedBefore(ctx, 5000)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev:1"}, uids)
}

func TestPurgeFile_RemovesRowPhysically(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertFile(ctx, File{FileUID: "dev:1", Realpath: "/a.txt", Status: FileStatusActive}, 1000))
	require.NoError(t, c.PurgeFile(ctx, "dev:1"))

	f, err := c.GetFileByUID(ctx, "dev:1")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestOrphanMirrorFileUIDs_FindsDocsWithoutLiveFile(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertMirrorDoc(ctx, MirrorDoc{FileUID: "dev:orphan", ContentHash: "h1", Path: "x.txt", UpdatedTS: 1000}))
	require.NoError(t, c.UpsertFile(ctx, File{FileUID: "dev:live", Realpath: "/a.txt", Status: FileStatusActive}, 1000))
	require.NoError(t, c.UpsertMirrorDoc(ctx, MirrorDoc{FileUID: "dev:live", ContentHash: "h2", Path: "a.txt", UpdatedTS: 1000}))

	orphans, err := c.OrphanMirrorFileUIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev:orphan"}, orphans)
}
