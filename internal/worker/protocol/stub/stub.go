// Package stub provides light-weight Protocol stand-ins for the
// variants whose wire framing is explicitly out of scope per
// spec.md §1 (HTTP(S), SMTP(S), SCP, WMO, MAP, DFAX, EXEC, LOC): each
// drives the Protocol Worker state machine without implementing that
// protocol's real framing. LOC copies bytes locally; the other kinds
// report success without touching the filesystem.
package stub

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/holger24/AFD-sub006/internal/worker/protocol"
)

// Kind names which variant a stub is standing in for, purely for
// trace-line/log attribution.
type Kind string

const (
	HTTP  Kind = "HTTP"
	HTTPS Kind = "HTTPS"
	SMTP  Kind = "SMTP"
	SMTPS Kind = "SMTPS"
	SCP   Kind = "SCP"
	WMO   Kind = "WMO"
	MAP   Kind = "MAP"
	DFAX  Kind = "DFAX"
	EXEC  Kind = "EXEC"
	LOC   Kind = "LOC"
)

// Proto is a stub transfer: LOC (local copy) actually copies bytes to
// Target.Dir on disk, since that is meaningful and cheap to verify;
// the remaining kinds accept the file and report success without
// touching the filesystem, matching their out-of-scope status.
type Proto struct {
	kind   Kind
	target protocol.Target
}

// New returns a Dialer for the named stub kind.
func New(kind Kind) protocol.Dialer {
	return func(t protocol.Target) protocol.Protocol { return &Proto{kind: kind, target: t} }
}

// Connect always succeeds for stub variants.
func (p *Proto) Connect(ctx context.Context) error { return nil }

// Send reports progress and, for LOC, performs a real local copy.
func (p *Proto) Send(ctx context.Context, f protocol.File, prog protocol.Progress) error {
	if p.kind != LOC {
		if prog != nil {
			prog(f.Size)
		}
		return nil
	}
	dst := f.RemoteName
	if p.target.Dir != "" {
		dst = p.target.Dir + "/" + f.RemoteName
	}
	in, err := os.Open(f.LocalPath)
	if err != nil {
		return fmt.Errorf("stub(LOC): open %s: %w", f.LocalPath, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("stub(LOC): create %s: %w", dst, err)
	}
	defer out.Close()

	var sent int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("stub(LOC): write %s: %w", dst, werr)
			}
			sent += int64(n)
			if prog != nil {
				prog(sent)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("stub(LOC): read %s: %w", f.LocalPath, rerr)
		}
	}
	return nil
}

// Close is a no-op for every stub kind.
func (p *Proto) Close() error { return nil }
