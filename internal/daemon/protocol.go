package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/holger24/AFD-sub006/internal/afdlog"
	"github.com/holger24/AFD-sub006/internal/hst"
	"github.com/holger24/AFD-sub006/internal/sched"
	"github.com/holger24/AFD-sub006/internal/worker"
	"github.com/holger24/AFD-sub006/internal/worker/protocol"
	"github.com/holger24/AFD-sub006/internal/worker/protocol/ftpproto"
	"github.com/holger24/AFD-sub006/internal/worker/protocol/sftpproto"
	"github.com/holger24/AFD-sub006/internal/worker/protocol/stub"
)

// Protocol identifiers stored in HostSlot.Protocol, matching the
// host-config file's numeric protocol field (spec.md §6.7). FTP, FTPS
// and SFTP are the variants with a real wire implementation (§4.5);
// the rest are named in §4.5 but explicitly out of scope per §1, so they
// resolve to stub.Proto.
const (
	ProtocolFTP uint32 = iota + 1
	ProtocolFTPS
	ProtocolSFTP
	ProtocolHTTP
	ProtocolHTTPS
	ProtocolSMTP
	ProtocolSMTPS
	ProtocolSCP
	ProtocolWMO
	ProtocolMAP
	ProtocolDFAX
	ProtocolEXEC
	ProtocolLOC
)

func protocolName(p uint32) string {
	switch p {
	case ProtocolFTP:
		return "ftp"
	case ProtocolFTPS:
		return "ftps"
	case ProtocolSFTP:
		return "sftp"
	case ProtocolHTTP:
		return "http"
	case ProtocolHTTPS:
		return "https"
	case ProtocolSMTP:
		return "smtp"
	case ProtocolSMTPS:
		return "smtps"
	case ProtocolSCP:
		return "scp"
	case ProtocolWMO:
		return "wmo"
	case ProtocolMAP:
		return "map"
	case ProtocolDFAX:
		return "dfax"
	case ProtocolEXEC:
		return "exec"
	case ProtocolLOC:
		return "loc"
	default:
		return "ftp"
	}
}

// DefaultRegistry wires every protocol named in spec.md §4.5 to a
// concrete Dialer: real implementations for FTP/FTPS/SFTP, stubs for
// the rest (only the LOC stub copies bytes; the others report success
// without transferring anything). hostKeyCB is forwarded to sftpproto.New verbatim;
// production callers should pass a real known_hosts callback rather
// than accepting arbitrary host keys.
func DefaultRegistry(hostKeyCB ssh.HostKeyCallback) protocol.Registry {
	return protocol.Registry{
		"ftp":   ftpproto.New(),
		"ftps":  ftpproto.NewTLS(),
		"sftp":  sftpproto.New(hostKeyCB),
		"http":  stub.New(stub.HTTP),
		"https": stub.New(stub.HTTPS),
		"smtp":  stub.New(stub.SMTP),
		"smtps": stub.New(stub.SMTPS),
		"scp":   stub.New(stub.SCP),
		"wmo":   stub.New(stub.WMO),
		"map":   stub.New(stub.MAP),
		"dfax":  stub.New(stub.DFAX),
		"exec":  stub.New(stub.EXEC),
		"loc":   stub.New(stub.LOC),
	}
}

// DirJobSource implements worker.JobSource by reading the job's HST
// row for connection/debug parameters and listing the staging
// directory for the file set, since sched.Job itself carries only
// counts and a directory path (spec.md §6.5).
type DirJobSource struct {
	hst             *hst.Table
	defaultPort     int
	transferTimeout time.Duration
}

// NewDirJobSource returns a JobSource bound to table. defaultPort is
// used for every protocol.Target (the host-config format of §6.7
// carries no per-host port field); transferTimeout bounds every
// dispatched worker (spec.md §4.5).
func NewDirJobSource(table *hst.Table, defaultPort int, transferTimeout time.Duration) *DirJobSource {
	return &DirJobSource{hst: table, defaultPort: defaultPort, transferTimeout: transferTimeout}
}

// Resolve implements worker.JobSource.
func (s *DirJobSource) Resolve(job *sched.Job) (worker.Options, error) {
	h, err := s.hst.ReadRow(job.HostRow)
	if err != nil {
		return worker.Options{}, fmt.Errorf("daemon: resolve job %d: read host row %d: %w", job.JobID, job.HostRow, err)
	}

	files, err := listStagedFiles(job.StagingDir)
	if err != nil {
		return worker.Options{}, fmt.Errorf("daemon: resolve job %d: %w", job.JobID, err)
	}

	return worker.Options{
		Target: protocol.Target{
			Host: h.RealHostname[h.TogglePos],
			Port: s.defaultPort,
			Dir:  "",
		},
		ProtocolName:      protocolName(h.Protocol),
		Files:             files,
		Simulate:          h.HostStatus&hst.SimulateSendMode != 0,
		DebugLevel:        afdlog.DebugLevel(h.Debug),
		Hostname:          h.HostAlias,
		HostID:            h.HostID,
		TransferTimeout:   s.transferTimeout,
		ConfirmationsUsed: protocolName(h.Protocol) == "ftp" || protocolName(h.Protocol) == "ftps" || protocolName(h.Protocol) == "sftp",
		StagingDir:        job.StagingDir,
		JobID:             job.JobID,
	}, nil
}

// listStagedFiles enumerates the regular files directly under dir,
// mirroring the staging-directory layout of spec.md §3.4/§6.5: every
// entry is one file queued for this job, named by its RemoteName on
// the far end.
func listStagedFiles(dir string) ([]protocol.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list staging dir %s: %w", dir, err)
	}
	files := make([]protocol.File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", filepath.Join(dir, e.Name()), err)
		}
		files = append(files, protocol.File{
			LocalPath:  filepath.Join(dir, e.Name()),
			RemoteName: e.Name(),
			Size:       info.Size(),
		})
	}
	return files, nil
}
