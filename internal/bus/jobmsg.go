package bus

import (
	"encoding/binary"
	"fmt"
	"time"
)

// JobMessage is the decoded form of the fixed binary layout §6.2
// documents for the job-message bus payload. Fields are packed in
// native (here: little-endian, matching the rest of this module) byte
// order; the total encoded length always equals JobMessageSize so a
// single frame fits one atomic fifo write.
type JobMessage struct {
	CreationTime time.Time
	FileSize     int64
	JobID        uint32
	SplitJobCtr  uint32
	FilesToSend  uint32
	UniqueNumber uint32
	DirNo        uint16 // parsed from the staging dir name's hex segment, §6.5
	Priority     byte   // single ASCII priority character
	Originator   byte   // e.g. OriginatorShowOlogNo for the resend path
}

// Originator byte values named in §4.6/§6.2.
const (
	OriginatorNormal     byte = 'N'
	OriginatorShowOlogNo byte = 'R'
)

const (
	jmOffCreationTime = 0
	jmOffFileSize     = jmOffCreationTime + 8
	jmOffJobID        = jmOffFileSize + 8
	jmOffSplitJobCtr  = jmOffJobID + 4
	jmOffFilesToSend  = jmOffSplitJobCtr + 4
	jmOffUniqueNumber = jmOffFilesToSend + 4
	jmOffDirNo        = jmOffUniqueNumber + 4
	jmOffPriority     = jmOffDirNo + 2
	jmOffOriginator   = jmOffPriority + 1
	jobMessageSize    = jmOffOriginator + 1
)

// JobMessageSize is MAX_BIN_MSG_LENGTH for this build (no multi-fs
// fs_id field: spec.md §6.2 marks it conditional on a multi-fs build,
// which this implementation does not target).
const JobMessageSize = jobMessageSize

// Encode packs m into the fixed §6.2 layout.
func (m *JobMessage) Encode() []byte {
	b := make([]byte, JobMessageSize)
	var ct int64
	if !m.CreationTime.IsZero() {
		ct = m.CreationTime.Unix()
	}
	binary.LittleEndian.PutUint64(b[jmOffCreationTime:], uint64(ct))
	binary.LittleEndian.PutUint64(b[jmOffFileSize:], uint64(m.FileSize))
	binary.LittleEndian.PutUint32(b[jmOffJobID:], m.JobID)
	binary.LittleEndian.PutUint32(b[jmOffSplitJobCtr:], m.SplitJobCtr)
	binary.LittleEndian.PutUint32(b[jmOffFilesToSend:], m.FilesToSend)
	binary.LittleEndian.PutUint32(b[jmOffUniqueNumber:], m.UniqueNumber)
	binary.LittleEndian.PutUint16(b[jmOffDirNo:], m.DirNo)
	b[jmOffPriority] = m.Priority
	b[jmOffOriginator] = m.Originator
	return b
}

// DecodeJobMessage unpacks a §6.2 frame. frame must be exactly
// JobMessageSize bytes (ReadFrame already enforces this).
func DecodeJobMessage(frame []byte) (*JobMessage, error) {
	if len(frame) != JobMessageSize {
		return nil, fmt.Errorf("bus: job message wrong size: got %d want %d", len(frame), JobMessageSize)
	}
	m := &JobMessage{}
	ct := int64(binary.LittleEndian.Uint64(frame[jmOffCreationTime:]))
	if ct != 0 {
		m.CreationTime = time.Unix(ct, 0)
	}
	m.FileSize = int64(binary.LittleEndian.Uint64(frame[jmOffFileSize:]))
	m.JobID = binary.LittleEndian.Uint32(frame[jmOffJobID:])
	m.SplitJobCtr = binary.LittleEndian.Uint32(frame[jmOffSplitJobCtr:])
	m.FilesToSend = binary.LittleEndian.Uint32(frame[jmOffFilesToSend:])
	m.UniqueNumber = binary.LittleEndian.Uint32(frame[jmOffUniqueNumber:])
	m.DirNo = binary.LittleEndian.Uint16(frame[jmOffDirNo:])
	m.Priority = frame[jmOffPriority]
	m.Originator = frame[jmOffOriginator]
	return m, nil
}

// JobFifo is a writer/reader pair over a job-message bus fifo.
type JobFifo struct {
	f *Fifo
}

// NewJobFifo wraps an already-open fifo.
func NewJobFifo(f *Fifo) *JobFifo { return &JobFifo{f: f} }

// Send writes one job message frame.
func (j *JobFifo) Send(m *JobMessage) error {
	return j.f.WriteFrame(m.Encode())
}

// Recv reads and decodes the next job message frame.
func (j *JobFifo) Recv() (*JobMessage, error) {
	buf := make([]byte, JobMessageSize)
	if err := j.f.ReadFrame(buf); err != nil {
		return nil, err
	}
	return DecodeJobMessage(buf)
}

// Close closes the underlying fifo.
func (j *JobFifo) Close() error { return j.f.Close() }
