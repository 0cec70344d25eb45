// Package sftpproto adapts the teacher's SFTP connection idiom
// (backend/sftp/sftp.go: ssh.Dial, sftp.NewClient, OpenFile+ReadFrom)
// into a single-job Protocol Worker variant.
package sftpproto

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/holger24/AFD-sub006/internal/worker/protocol"
)

// Proto is one SFTP connection scoped to a single job, grounded on
// backend/sftp/sftp.go's conn type but closed after one job instead
// of returned to a pool.
type Proto struct {
	target     protocol.Target
	hostKeyCB  ssh.HostKeyCallback
	sshClient  *ssh.Client
	sftpClient *sftp.Client
}

// New returns a Dialer for SFTP. hostKeyCB is passed straight to
// ssh.ClientConfig; callers running against known hosts should supply
// ssh.FixedHostKey or a knownhosts callback rather than
// InsecureIgnoreHostKey in anything but tests.
func New(hostKeyCB ssh.HostKeyCallback) protocol.Dialer {
	return func(t protocol.Target) protocol.Protocol {
		return &Proto{target: t, hostKeyCB: hostKeyCB}
	}
}

// Connect dials SSH then opens an SFTP subsystem session, mirroring
// backend/sftp/sftp.go's sftpConnection/newSftpClient pair.
func (p *Proto) Connect(ctx context.Context) error {
	cfg := &ssh.ClientConfig{
		User:            p.target.User,
		Auth:            []ssh.AuthMethod{ssh.Password(p.target.Password)},
		HostKeyCallback: p.hostKeyCB,
	}
	addr := fmt.Sprintf("%s:%d", p.target.Host, p.target.Port)
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("sftpproto: dial %s: %w", addr, err)
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("sftpproto: new sftp client: %w", err)
	}
	p.sshClient = client
	p.sftpClient = sc
	return nil
}

// Send opens RemoteName for write and streams the local file into it,
// mirroring (*Object).Update's OpenFile+ReadFrom+remove-on-failure
// pattern.
func (p *Proto) Send(ctx context.Context, f protocol.File, prog protocol.Progress) error {
	if p.sftpClient == nil {
		return fmt.Errorf("sftpproto: send called before connect")
	}
	remote := f.RemoteName
	if p.target.Dir != "" {
		remote = p.target.Dir + "/" + f.RemoteName
	}
	rf, err := p.sftpClient.OpenFile(remote, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("sftpproto: open remote %s: %w", remote, err)
	}

	local, err := os.Open(f.LocalPath)
	if err != nil {
		_ = rf.Close()
		return fmt.Errorf("sftpproto: open local %s: %w", f.LocalPath, err)
	}
	defer local.Close()

	pr := &progressReader{r: local, report: prog}
	if _, err := rf.ReadFrom(pr); err != nil {
		_ = rf.Close()
		_ = p.sftpClient.Remove(remote)
		return fmt.Errorf("sftpproto: write %s: %w", remote, err)
	}
	if err := rf.Close(); err != nil {
		_ = p.sftpClient.Remove(remote)
		return fmt.Errorf("sftpproto: close %s: %w", remote, err)
	}
	return nil
}

// Close tears down the SFTP and SSH layers, tolerating either being
// already nil.
func (p *Proto) Close() error {
	var sftpErr, sshErr error
	if p.sftpClient != nil {
		sftpErr = p.sftpClient.Close()
		p.sftpClient = nil
	}
	if p.sshClient != nil {
		sshErr = p.sshClient.Close()
		p.sshClient = nil
	}
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}

type progressReader struct {
	r      io.Reader
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
