package bus

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ConfirmationType is the confirmation_type byte of the §6.3 DEMCD
// layout.
type ConfirmationType byte

const (
	ConfirmDone ConfirmationType = iota + 1
	ConfirmError
	ConfirmTimeout
	ConfirmCancelled
)

// MaxHostnameLen bounds the hostname field per §6.3's
// MAX_HOSTNAME_LEN.
const MaxHostnameLen = 64

// MaxFileNameLen bounds the file_name field this implementation
// accepts in one DEMCD frame.
const MaxFileNameLen = 256

// Confirmation is the decoded DEMCD message of spec.md §6.3. Per the
// spec's note that "offsets are aligned by promoting the first two
// fields to the maximum of their individual sizes", both FileSize and
// JobNumber occupy an 8-byte slot here regardless of platform off_t
// width, keeping the Go encoding portable without unsafe aliasing.
type Confirmation struct {
	FileSize           int64
	JobNumber          uint32
	UniqueNameOffset   uint16
	FileNameLength     uint16
	ConfirmationType   ConfirmationType
	Hostname           string
	FileName           string
}

const (
	dcOffFileSize        = 0
	dcOffJobNumber       = dcOffFileSize + 8
	dcOffUniqueNameOff   = dcOffJobNumber + 8
	dcOffFileNameLength  = dcOffUniqueNameOff + 2
	dcOffConfirmType     = dcOffFileNameLength + 2
	dcOffHostname        = dcOffConfirmType + 1
	dcOffFileName        = dcOffHostname + MaxHostnameLen + 1
	demcdSize            = dcOffFileName + MaxFileNameLen + 1
)

// DEMCDSize is the fixed frame size for Confirmation messages.
const DEMCDSize = demcdSize

// Encode packs c into the fixed §6.3 layout.
func (c *Confirmation) Encode() ([]byte, error) {
	if len(c.Hostname) > MaxHostnameLen {
		return nil, fmt.Errorf("bus: hostname %q exceeds MAX_HOSTNAME_LEN", c.Hostname)
	}
	if len(c.FileName) > MaxFileNameLen {
		return nil, fmt.Errorf("bus: file name %q exceeds frame limit", c.FileName)
	}
	b := make([]byte, DEMCDSize)
	binary.LittleEndian.PutUint64(b[dcOffFileSize:], uint64(c.FileSize))
	binary.LittleEndian.PutUint64(b[dcOffJobNumber:], uint64(c.JobNumber))
	binary.LittleEndian.PutUint16(b[dcOffUniqueNameOff:], c.UniqueNameOffset)
	binary.LittleEndian.PutUint16(b[dcOffFileNameLength:], c.FileNameLength)
	b[dcOffConfirmType] = byte(c.ConfirmationType)
	copy(b[dcOffHostname:dcOffHostname+MaxHostnameLen], c.Hostname)
	copy(b[dcOffFileName:dcOffFileName+MaxFileNameLen], c.FileName)
	return b, nil
}

// DecodeConfirmation unpacks a §6.3 frame.
func DecodeConfirmation(frame []byte) (*Confirmation, error) {
	if len(frame) != DEMCDSize {
		return nil, fmt.Errorf("bus: confirmation wrong size: got %d want %d", len(frame), DEMCDSize)
	}
	c := &Confirmation{}
	c.FileSize = int64(binary.LittleEndian.Uint64(frame[dcOffFileSize:]))
	c.JobNumber = uint32(binary.LittleEndian.Uint64(frame[dcOffJobNumber:]))
	c.UniqueNameOffset = binary.LittleEndian.Uint16(frame[dcOffUniqueNameOff:])
	c.FileNameLength = binary.LittleEndian.Uint16(frame[dcOffFileNameLength:])
	c.ConfirmationType = ConfirmationType(frame[dcOffConfirmType])
	c.Hostname = nulTerminated(frame[dcOffHostname : dcOffHostname+MaxHostnameLen])
	c.FileName = nulTerminated(frame[dcOffFileName : dcOffFileName+MaxFileNameLen])
	return c, nil
}

func nulTerminated(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// DEMCDFifo is a writer/reader pair over the confirmation bus fifo.
type DEMCDFifo struct {
	f *Fifo
}

// NewDEMCDFifo wraps an already-open fifo.
func NewDEMCDFifo(f *Fifo) *DEMCDFifo { return &DEMCDFifo{f: f} }

// Send writes one confirmation frame.
func (d *DEMCDFifo) Send(c *Confirmation) error {
	frame, err := c.Encode()
	if err != nil {
		return err
	}
	return d.f.WriteFrame(frame)
}

// Recv reads and decodes the next confirmation frame.
func (d *DEMCDFifo) Recv() (*Confirmation, error) {
	buf := make([]byte, DEMCDSize)
	if err := d.f.ReadFrame(buf); err != nil {
		return nil, err
	}
	return DecodeConfirmation(buf)
}

// Close closes the underlying fifo.
func (d *DEMCDFifo) Close() error { return d.f.Close() }
