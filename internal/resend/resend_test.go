package resend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holger24/AFD-sub006/internal/bus"
	"github.com/holger24/AFD-sub006/internal/counter"
	"github.com/holger24/AFD-sub006/internal/hst"
)

func TestParseOutputLogLineLegacy(t *testing.T) {
	line := "0731143022000 hosta    F  report.txt|1024|350|a1|uniq123|/archive/hosta"
	e, err := ParseOutputLogLine(line, false)
	require.NoError(t, err)
	assert.Equal(t, "hosta", e.Alias)
	assert.Equal(t, "report.txt", e.FileName)
	assert.Equal(t, int64(1024), e.Size)
	assert.Equal(t, uint32(0xa1), e.JobID)
	assert.Equal(t, "/archive/hosta", e.ArchiveDir)
}

func TestParseOutputLogLineVersion14Long(t *testing.T) {
	line := "0731143022000 hosta    PEXEC  report.txt|2048|10|ff|uniq|/archive/hosta"
	e, err := ParseOutputLogLine(line, true)
	require.NoError(t, err)
	assert.Equal(t, "PEXEC", e.Type)
	assert.Equal(t, int64(2048), e.Size)
}

func TestParseOutputLogLineVersion14Width3(t *testing.T) {
	line := "0731143022000 hosta    FTP  report.txt|512|5|2|uniq|/archive/hosta"
	e, err := ParseOutputLogLine(line, true)
	require.NoError(t, err)
	assert.Equal(t, "FTP", e.Type)
}

func TestParseOutputLogLineEscapedSpaces(t *testing.T) {
	line := `0731143022000 hosta    F  my\ file.txt|10|1|5|u|/archive/with\ space`
	e, err := ParseOutputLogLine(line, false)
	require.NoError(t, err)
	assert.Equal(t, "my file.txt", e.FileName)
	assert.Equal(t, "/archive/with space", e.ArchiveDir)
}

func TestParseOutputLogLineTooShort(t *testing.T) {
	_, err := ParseOutputLogLine("short", false)
	assert.Error(t, err)
}

func TestStagingDirNameFormat(t *testing.T) {
	name := StagingDirName('2', 0x68123, 0xa, 0xb, 0xc, 0x3)
	assert.Equal(t, "268123_a_b_c/3/", name)
}

func TestMakeStagingDirCollisionGetsTieBreaker(t *testing.T) {
	base := t.TempDir()
	name := StagingDirName('1', 100, 1, 0, 1, 0)

	first, err := MakeStagingDir(base, name)
	require.NoError(t, err)

	second, err := MakeStagingDir(base, name)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "colliding allocation must get a distinct directory")

	_, statErr := os.Stat(second)
	assert.NoError(t, statErr)
}

func newPipelineFixtures(t *testing.T) (*hst.Table, int, *bus.JobFifo, func()) {
	t.Helper()
	dir := t.TempDir()
	tbl, err := hst.Attach(filepath.Join(dir, "hst.dat"), filepath.Join(dir, "hst.lck"), 1, true)
	require.NoError(t, err)
	require.NoError(t, tbl.ReloadFromConfig([]hst.ConfigHost{{HostID: 1, HostAlias: "alpha", AllowedTransfers: 1}}))
	row, err := tbl.Lookup(1)
	require.NoError(t, err)

	fifoPath := filepath.Join(dir, "job_fifo")
	require.NoError(t, bus.CreateFifo(fifoPath, 0o600))

	readerDone := make(chan *bus.JobFifo, 1)
	go func() {
		r, err := bus.OpenReader(fifoPath)
		require.NoError(t, err)
		readerDone <- bus.NewJobFifo(r)
	}()

	w, err := bus.OpenWriter(fifoPath)
	require.NoError(t, err)
	reader := <-readerDone

	cleanup := func() {
		w.Close()
		reader.Close()
		tbl.Close()
	}
	return tbl, row, bus.NewJobFifo(w), cleanup
}

func TestPipelineProcessSendsBatchAndCreditsCounters(t *testing.T) {
	tbl, row, jobFifo, cleanup := newPipelineFixtures(t)
	defer cleanup()

	archiveDir := t.TempDir()
	stagingBase := t.TempDir()
	writeArchiveFile(t, archiveDir, "a.txt", "hello")
	writeArchiveFile(t, archiveDir, "b.txt", "world!")

	sels := []Selection{
		{Priority: '3', Entry: &LogEntry{JobID: 7, FileName: "a.txt", Size: 5, ArchiveDir: archiveDir}},
		{Priority: '3', Entry: &LogEntry{JobID: 7, FileName: "b.txt", Size: 6, ArchiveDir: archiveDir}},
	}

	p := NewPipeline(Config{MaxCopiedFiles: 10, StagingBase: stagingBase}, &counter.MemAllocator{}, tbl, row, jobFifo)

	sum, err := p.Process(context.Background(), sels)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.FilesSent)
	assert.Empty(t, sum.NotInArchive)

	slot, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), slot.TotalFileCounter)
	assert.Equal(t, uint64(11), slot.TotalFileSize)
}

func TestPipelineProcessReportsNotInArchive(t *testing.T) {
	tbl, row, jobFifo, cleanup := newPipelineFixtures(t)
	defer cleanup()

	sels := []Selection{
		{Priority: '3', Entry: &LogEntry{JobID: 1, FileName: "missing.txt", Size: 5, ArchiveDir: t.TempDir()}},
	}
	p := NewPipeline(Config{MaxCopiedFiles: 10, StagingBase: t.TempDir()}, &counter.MemAllocator{}, tbl, row, jobFifo)

	sum, err := p.Process(context.Background(), sels)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.FilesSent)
	assert.Equal(t, []string{"missing.txt"}, sum.NotInArchive)
}

func TestPipelineProcessStopsAtResendLimit(t *testing.T) {
	tbl, row, jobFifo, cleanup := newPipelineFixtures(t)
	defer cleanup()

	archiveDir := t.TempDir()
	writeArchiveFile(t, archiveDir, "a.txt", "x")
	writeArchiveFile(t, archiveDir, "b.txt", "y")

	sels := []Selection{
		{Priority: '3', Entry: &LogEntry{JobID: 1, FileName: "a.txt", Size: 1, ArchiveDir: archiveDir}},
		{Priority: '3', Entry: &LogEntry{JobID: 2, FileName: "b.txt", Size: 1, ArchiveDir: archiveDir}},
	}
	p := NewPipeline(Config{MaxCopiedFiles: 1, StagingBase: t.TempDir(), ResendLimit: 1, RateBurst: 1}, &counter.MemAllocator{}, tbl, row, jobFifo)
	// Drain the single burst token up front so the limiter already
	// refuses the first batch.
	p.limiter.Allow()

	sum, err := p.Process(context.Background(), sels)
	require.NoError(t, err)
	assert.True(t, sum.LimitReached)
}

func writeArchiveFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
