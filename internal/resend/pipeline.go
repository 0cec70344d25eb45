package resend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/holger24/AFD-sub006/internal/bus"
	"github.com/holger24/AFD-sub006/internal/counter"
	"github.com/holger24/AFD-sub006/internal/hst"
)

// Selection is one operator-picked prior output-log entry to resend.
type Selection struct {
	Entry    *LogEntry
	Priority byte
}

// Config bounds RAP's behavior per spec.md §4.6.
type Config struct {
	MaxCopiedFiles int    // batch size per job_id group
	ResendLimit    int    // operator-configured rate, batches/sec (one limiter token per batch)
	StagingBase    string // outgoing spool root
	RateBurst      int
}

// Summary reports what one Process call accomplished.
type Summary struct {
	FilesSent    int
	Overwrites   int
	NotInArchive []string
	LimitReached bool
}

// Pipeline runs the Resend/Archive Pipeline.
type Pipeline struct {
	cfg     Config
	ctr     counter.Allocator
	hstRow  int
	hstTbl  *hst.Table
	jobBus  *bus.JobFifo
	limiter *rate.Limiter
}

// NewPipeline constructs a Pipeline. hstRow is the HST row whose TFC
// region gets credited for every batch (spec.md §4.6 step 3).
func NewPipeline(cfg Config, ctr counter.Allocator, hstTbl *hst.Table, hstRow int, jobBus *bus.JobFifo) *Pipeline {
	limit := rate.Limit(cfg.ResendLimit)
	if cfg.ResendLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Pipeline{
		cfg:     cfg,
		ctr:     ctr,
		hstTbl:  hstTbl,
		hstRow:  hstRow,
		jobBus:  jobBus,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Process runs spec.md §4.6's full algorithm over sels: group by
// job_id, batch by MaxCopiedFiles, stage via link→copy→report,
// publish one job message per batch, credit HST counters, and stop
// early (recording LimitReached) once resend_limit is exhausted.
func (p *Pipeline) Process(ctx context.Context, sels []Selection) (Summary, error) {
	var sum Summary
	groups := groupByJobID(sels)

	for _, g := range groups {
		for start := 0; start < len(g); start += p.cfg.MaxCopiedFiles {
			if p.cfg.ResendLimit > 0 && !p.limiter.Allow() {
				sum.LimitReached = true
				return sum, nil
			}
			end := start + p.cfg.MaxCopiedFiles
			if end > len(g) {
				end = len(g)
			}
			batch := g[start:end]
			if err := p.processBatch(ctx, batch, &sum); err != nil {
				return sum, err
			}
		}
	}
	return sum, nil
}

func (p *Pipeline) processBatch(ctx context.Context, batch []Selection, sum *Summary) error {
	first := batch[0].Entry
	num, err := p.ctr.Next(1)
	if err != nil {
		return fmt.Errorf("resend: allocate counter: %w", err)
	}
	name := StagingDirName(batch[0].Priority, time.Now().Unix(), first.JobID, 0, num, 0)
	dir, err := MakeStagingDir(p.cfg.StagingBase, name)
	if err != nil {
		return fmt.Errorf("resend: stage dir: %w", err)
	}

	var filesToSend uint32
	var fileSizeToSend int64
	var notInArchive []string
	for _, s := range batch {
		e := s.Entry
		archivePath := filepath.Join(e.ArchiveDir, e.FileName)
		stagedPath := filepath.Join(dir, e.FileName)
		switch err := linkOrCopy(archivePath, stagedPath); {
		case err == nil:
			filesToSend++
			fileSizeToSend += e.Size
		case errors.Is(err, errOverwrite):
			sum.Overwrites++
			filesToSend++
			fileSizeToSend += e.Size
		default:
			notInArchive = append(notInArchive, e.FileName)
		}
	}
	sum.NotInArchive = append(sum.NotInArchive, notInArchive...)

	// Touch the staging dir's mtime so an age-based cleanup sweep of the
	// outgoing spool sees this batch as freshly written.
	now := time.Now()
	_ = os.Chtimes(dir, now, now)

	msg := &bus.JobMessage{
		CreationTime: time.Now(),
		FileSize:     fileSizeToSend,
		JobID:        first.JobID,
		FilesToSend:  filesToSend,
		UniqueNumber: num,
		Priority:     batch[0].Priority,
		Originator:   bus.OriginatorShowOlogNo,
	}

	if err := p.hstTbl.AdjustCounters(p.hstRow, int64(filesToSend), fileSizeToSend); err != nil {
		return fmt.Errorf("resend: credit HST counters: %w", err)
	}
	if err := p.jobBus.Send(msg); err != nil {
		// Roll back the counter update to preserve I1: the published
		// job count must match HST's total_file_counter (spec.md §4.6
		// "Failure semantics").
		if rbErr := p.hstTbl.AdjustCounters(p.hstRow, -int64(filesToSend), -fileSizeToSend); rbErr != nil {
			return fmt.Errorf("resend: publish failed (%v) and rollback failed: %w", err, rbErr)
		}
		return fmt.Errorf("resend: publish job message: %w", err)
	}

	sum.FilesSent += int(filesToSend)
	return nil
}

var errOverwrite = errors.New("resend: fell back to copy")

// linkOrCopy implements the §4.6 fallback chain: prefer a hard link;
// on EEXIST or EXDEV fall back to a full copy (reported via
// errOverwrite so the caller can count it); any other error means the
// source is not actually in the archive.
func linkOrCopy(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && (errors.Is(linkErr.Err, os.ErrExist) || isCrossDevice(linkErr.Err)) {
		if cErr := copyFile(src, dst); cErr != nil {
			return fmt.Errorf("resend: copy fallback for %s: %w", src, cErr)
		}
		return errOverwrite
	}
	return fmt.Errorf("resend: not in archive: %s: %w", src, err)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// isCrossDevice reports whether err is EXDEV, the errno os.Link
// returns when src and dst live on different filesystems.
func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}

func groupByJobID(sels []Selection) [][]Selection {
	byJob := make(map[uint32][]Selection)
	var order []uint32
	for _, s := range sels {
		if _, ok := byJob[s.Entry.JobID]; !ok {
			order = append(order, s.Entry.JobID)
		}
		byJob[s.Entry.JobID] = append(byJob[s.Entry.JobID], s)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	groups := make([][]Selection, 0, len(order))
	for _, id := range order {
		groups = append(groups, byJob[id])
	}
	return groups
}
