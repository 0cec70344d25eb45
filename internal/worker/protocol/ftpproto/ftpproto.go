// Package ftpproto adapts the teacher's FTP connection/transfer idiom
// (backend/ftp/ftp.go: dial, login, Stor) into a single-job Protocol
// Worker variant, stripped of the filesystem-abstraction layer (Fs,
// Object, list/move/etc.) AFD has no use for.
package ftpproto

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jlaffaye/ftp"

	"github.com/holger24/AFD-sub006/internal/worker/protocol"
)

// Proto is one FTP connection scoped to a single job, grounded on
// backend/ftp/ftp.go's ftpConnection/putFtpConnection pair but
// simplified to the lifetime of one Connect/Send/Close sequence
// instead of a pooled *Fs.
type Proto struct {
	target protocol.Target
	tls    bool
	conn   *ftp.ServerConn
}

// New returns a Dialer for plain (non-TLS) FTP.
func New() protocol.Dialer {
	return func(t protocol.Target) protocol.Protocol { return &Proto{target: t} }
}

// NewTLS returns a Dialer for explicit FTPS (AUTH TLS), grounded on the same
// backend/ftp/ftp.go dial path with opt.TLS set.
func NewTLS() protocol.Dialer {
	return func(t protocol.Target) protocol.Protocol { return &Proto{target: t, tls: true} }
}

// Connect dials and authenticates, mirroring
// backend/ftp/ftp.go's ftpConnection: dial then Login, wrapping the
// server-rejection case in a descriptive error.
func (p *Proto) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", p.target.Host, p.target.Port)
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if p.tls {
		opts = append(opts, ftp.DialWithExplicitTLS(nil))
	}
	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return fmt.Errorf("ftpproto: dial %s: %w", addr, err)
	}
	if err := c.Login(p.target.User, p.target.Password); err != nil {
		_ = c.Quit()
		return fmt.Errorf("ftpproto: login to %s: %w", addr, err)
	}
	if p.target.Dir != "" {
		if err := c.ChangeDir(p.target.Dir); err != nil {
			_ = c.Quit()
			return fmt.Errorf("ftpproto: cwd %s: %w", p.target.Dir, err)
		}
	}
	p.conn = c
	return nil
}

// Send stores one local file under RemoteName, mirroring
// backend/ftp/ftp.go's (*Object).Update, which calls c.Stor directly
// with the local reader.
func (p *Proto) Send(ctx context.Context, f protocol.File, prog protocol.Progress) error {
	if p.conn == nil {
		return fmt.Errorf("ftpproto: send called before connect")
	}
	file, err := os.Open(f.LocalPath)
	if err != nil {
		return fmt.Errorf("ftpproto: open %s: %w", f.LocalPath, err)
	}
	defer file.Close()

	pr := &progressReader{r: file, size: f.Size, report: prog}
	if err := p.conn.Stor(f.RemoteName, pr); err != nil {
		return fmt.Errorf("ftpproto: stor %s: %w", f.RemoteName, err)
	}
	return nil
}

// Close quits the control connection, tolerating a nil/already-closed
// connection since the worker state machine calls Close from any
// terminal state.
func (p *Proto) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Quit()
	p.conn = nil
	return err
}

// progressReader wraps an io.Reader, invoking report after every read
// so the caller can mirror bytes_send into HST as §4.5 requires.
type progressReader struct {
	r      io.Reader
	size   int64
	sent   int64
	report protocol.Progress
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	pr.sent += int64(n)
	if pr.report != nil {
		pr.report(pr.sent)
	}
	return n, err
}
