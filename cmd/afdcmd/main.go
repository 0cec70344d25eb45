// Command afdcmd is the operational front-end of spec.md §6.6: a
// stateless client that mutates the shared Host Status Table /
// Directory Status Table directly for in-table toggles, and writes
// single opcodes onto the appropriate Message Bus fifo for commands
// that only the running afd process can act on. Every action logs a
// DEBUG-level line (ERROR on failure) keyed by the target's alias; no
// separate EVENT record is written. Exit status is 0 only if every
// requested action on every named target succeeded.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/holger24/AFD-sub006/internal/afdlog"
	"github.com/holger24/AFD-sub006/internal/afdpaths"
	"github.com/holger24/AFD-sub006/internal/bus"
	"github.com/holger24/AFD-sub006/internal/dst"
	"github.com/holger24/AFD-sub006/internal/hst"
)

var opt = struct {
	baseDir string
	hstRows int
	dstRows int

	startQueue, stopQueue       bool
	startTransfer, stopTransfer bool
	enableHost, disableHost     bool
	enableDir, disableDir       bool
	switchHost                  bool
	setRealHostname             string
	retry                       bool
	rescan                      bool
	debugOn, traceOn, fullTrace bool
	debugOff                    bool
	simulateOn, simulateOff     bool

	startAMG, stopAMG, toggleAMG bool
	startFD, stopFD, toggleFD    bool
	checkFileDir                 bool
	rereadLocInterfaceFile       bool
	showExecStat                 bool
	forceArchiveCheck            bool
	searchOldFiles               bool
}{}

var commandDefinition = &cobra.Command{
	Use:   "afdcmd [flags] [alias ...]",
	Short: "Operate a running AFD instance's hosts, directories, and daemons",
	Long: `afdcmd drives the control surface spec.md §6.6 documents: host/directory
queue and transfer toggles, debug levels, A/B switching, and process-wide
commands like reread-loc-interface-file or force-archive-check. Options
that target a host or directory apply to every alias given as a
positional argument; options with no target (AMG/FD start/stop/toggle,
check-file-dir, reread-loc-interface-file, show-exec-stat,
force-archive-check, search-old-files) ignore positional arguments.`,
	RunE: runAfdcmd,
}

func main() {
	f := commandDefinition.Flags()
	f.StringVar(&opt.baseDir, "base-dir", "/var/afd", "root directory for shared tables and fifos")
	f.IntVar(&opt.hstRows, "hst-rows", 64, "number of Host Status Table rows (must match the running afd's --hst-rows)")
	f.IntVar(&opt.dstRows, "dst-rows", 32, "number of Directory Status Table rows (must match the running afd's --dst-rows)")

	f.BoolVar(&opt.startQueue, "start-queue", false, "clear PAUSE_QUEUE on the named hosts")
	f.BoolVar(&opt.stopQueue, "stop-queue", false, "set PAUSE_QUEUE on the named hosts")
	f.BoolVar(&opt.startTransfer, "start-transfer", false, "clear STOP_TRANSFER on the named hosts")
	f.BoolVar(&opt.stopTransfer, "stop-transfer", false, "set STOP_TRANSFER on the named hosts (cancels active workers)")
	f.BoolVar(&opt.enableHost, "enable-host", false, "clear HOST_DISABLED on the named hosts")
	f.BoolVar(&opt.disableHost, "disable-host", false, "set HOST_DISABLED on the named hosts")
	f.BoolVar(&opt.enableDir, "enable-dir", false, "clear DIR_DISABLED on the named directories")
	f.BoolVar(&opt.disableDir, "disable-dir", false, "set DIR_DISABLED on the named directories")
	f.BoolVar(&opt.switchHost, "switch-host", false, "flip the A/B real_hostname toggle on the named hosts")
	f.StringVar(&opt.setRealHostname, "set-real-hostname", "", "pos:name, e.g. 0:primary.example.com, applied to the named hosts")
	f.BoolVar(&opt.retry, "retry", false, "force an immediate retry of the named hosts' backoff timer")
	f.BoolVar(&opt.rescan, "rescan", false, "force a rescan of the named directories")
	f.BoolVar(&opt.debugOn, "debug", false, "set DEBUG trace level on the named hosts")
	f.BoolVar(&opt.traceOn, "trace", false, "set TRACE trace level on the named hosts")
	f.BoolVar(&opt.fullTrace, "full-trace", false, "set FULL_TRACE trace level on the named hosts")
	f.BoolVar(&opt.debugOff, "debug-off", false, "reset trace level to NORMAL on the named hosts")
	f.BoolVar(&opt.simulateOn, "simulate-on", false, "set SIMULATE_SEND_MODE on the named hosts")
	f.BoolVar(&opt.simulateOff, "simulate-off", false, "clear SIMULATE_SEND_MODE on the named hosts")

	f.BoolVar(&opt.startAMG, "start-amg", false, "send START_AMG on AFD_CMD_FIFO")
	f.BoolVar(&opt.stopAMG, "stop-amg", false, "send STOP_AMG on AFD_CMD_FIFO")
	f.BoolVar(&opt.toggleAMG, "toggle-amg", false, "send STOP_AMG then START_AMG on AFD_CMD_FIFO (AMG's own state is not observable from here)")
	f.BoolVar(&opt.startFD, "start-fd", false, "send START_FD on AFD_CMD_FIFO")
	f.BoolVar(&opt.stopFD, "stop-fd", false, "send STOP_FD on AFD_CMD_FIFO")
	f.BoolVar(&opt.toggleFD, "toggle-fd", false, "send STOP_FD then START_FD on AFD_CMD_FIFO")
	f.BoolVar(&opt.checkFileDir, "check-file-dir", false, "send CHECK_FILE_DIR on FD_CMD_FIFO")
	f.BoolVar(&opt.rereadLocInterfaceFile, "reread-loc-interface-file", false, "send REREAD_LOC_INTERFACE_FILE on FD_CMD_FIFO")
	f.BoolVar(&opt.showExecStat, "show-exec-stat", false, "send SR_EXEC_STAT on DC_CMD_FIFO")
	f.BoolVar(&opt.forceArchiveCheck, "force-archive-check", false, "send RETRY on AW_CMD_FIFO")
	f.BoolVar(&opt.searchOldFiles, "search-old-files", false, "send SEARCH_OLD_FILES on DC_CMD_FIFO")

	if err := commandDefinition.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAfdcmd(cmd *cobra.Command, args []string) error {
	log := afdlog.Component(afdlog.New(slog.LevelDebug), "afdcmd")
	layout := afdpaths.New(opt.baseDir)

	c := &controller{layout: layout, log: log}
	defer c.closeAll()

	failed := false
	note := func(alias string, err error) {
		if err != nil {
			log.Error("action failed", "target", alias, "error", err)
			failed = true
			return
		}
		log.Debug("action applied", "target", alias)
	}

	processGlobal := opt.startAMG || opt.stopAMG || opt.toggleAMG ||
		opt.startFD || opt.stopFD || opt.toggleFD || opt.checkFileDir ||
		opt.rereadLocInterfaceFile || opt.showExecStat || opt.forceArchiveCheck ||
		opt.searchOldFiles
	if processGlobal {
		note("(global)", c.applyGlobal())
	}

	hostOps := opt.startQueue || opt.stopQueue || opt.startTransfer || opt.stopTransfer ||
		opt.enableHost || opt.disableHost || opt.switchHost || opt.setRealHostname != "" ||
		opt.retry || opt.debugOn || opt.traceOn || opt.fullTrace || opt.debugOff ||
		opt.simulateOn || opt.simulateOff
	dirOps := opt.enableDir || opt.disableDir || opt.rescan

	if hostOps || dirOps {
		if err := c.open(); err != nil {
			return err
		}
	}
	for _, alias := range args {
		if hostOps {
			note(alias, c.applyHost(alias))
		}
		if dirOps {
			note(alias, c.applyDir(alias))
		}
	}

	if failed {
		return fmt.Errorf("afdcmd: one or more actions failed")
	}
	return nil
}

// controller lazily attaches the tables/fifos an invocation actually
// needs, so a pure fifo command (e.g. --start-fd) never blocks opening
// a writer for an fifo it has no use for.
type controller struct {
	layout afdpaths.Layout
	log    *slog.Logger

	hstTable *hst.Table
	dstTable *dst.Table

	afdCmdW  *bus.CmdFifo
	fdCmdW   *bus.CmdFifo
	dcCmdW   *bus.CmdFifo
	awCmdW   *bus.CmdFifo
	retryW   *bus.RetryFifo
	deleteW  *bus.DeleteFifo
}

func (c *controller) open() error {
	var err error
	if c.hstTable, err = hst.Attach(c.layout.HSTData(), c.layout.HSTLock(), opt.hstRows, false); err != nil {
		return fmt.Errorf("afdcmd: attach HST: %w", err)
	}
	if c.dstTable, err = dst.Attach(c.layout.DSTData(), c.layout.DSTLock(), opt.dstRows, false); err != nil {
		return fmt.Errorf("afdcmd: attach DST: %w", err)
	}
	return nil
}

func (c *controller) afdCmd() (*bus.CmdFifo, error) {
	if c.afdCmdW == nil {
		w, err := bus.OpenWriter(c.layout.AFDCmdFifo())
		if err != nil {
			return nil, err
		}
		c.afdCmdW = bus.NewCmdFifo(w)
	}
	return c.afdCmdW, nil
}

func (c *controller) fdCmd() (*bus.CmdFifo, error) {
	if c.fdCmdW == nil {
		w, err := bus.OpenWriter(c.layout.FDCmdFifo())
		if err != nil {
			return nil, err
		}
		c.fdCmdW = bus.NewCmdFifo(w)
	}
	return c.fdCmdW, nil
}

func (c *controller) dcCmd() (*bus.CmdFifo, error) {
	if c.dcCmdW == nil {
		w, err := bus.OpenWriter(c.layout.DCCmdFifo())
		if err != nil {
			return nil, err
		}
		c.dcCmdW = bus.NewCmdFifo(w)
	}
	return c.dcCmdW, nil
}

func (c *controller) awCmd() (*bus.CmdFifo, error) {
	if c.awCmdW == nil {
		w, err := bus.OpenWriter(c.layout.AWCmdFifo())
		if err != nil {
			return nil, err
		}
		c.awCmdW = bus.NewCmdFifo(w)
	}
	return c.awCmdW, nil
}

func (c *controller) retryFifo() (*bus.RetryFifo, error) {
	if c.retryW == nil {
		w, err := bus.OpenWriter(c.layout.RetryFDFifo())
		if err != nil {
			return nil, err
		}
		c.retryW = bus.NewRetryFifo(w)
	}
	return c.retryW, nil
}

func (c *controller) closeAll() {
	if c.hstTable != nil {
		c.hstTable.Close()
	}
	if c.dstTable != nil {
		c.dstTable.Close()
	}
	if c.afdCmdW != nil {
		c.afdCmdW.Close()
	}
	if c.fdCmdW != nil {
		c.fdCmdW.Close()
	}
	if c.dcCmdW != nil {
		c.dcCmdW.Close()
	}
	if c.awCmdW != nil {
		c.awCmdW.Close()
	}
	if c.retryW != nil {
		c.retryW.Close()
	}
}

// applyGlobal handles every flag with no host/directory target.
func (c *controller) applyGlobal() error {
	if opt.startAMG {
		if err := c.sendAFD(bus.OpStartAMG); err != nil {
			return err
		}
	}
	if opt.stopAMG {
		if err := c.sendAFD(bus.OpStopAMG); err != nil {
			return err
		}
	}
	if opt.toggleAMG {
		if err := c.sendAFD(bus.OpStopAMG); err != nil {
			return err
		}
		if err := c.sendAFD(bus.OpStartAMG); err != nil {
			return err
		}
	}
	if opt.startFD {
		if err := c.sendAFD(bus.OpStartFD); err != nil {
			return err
		}
	}
	if opt.stopFD {
		if err := c.sendAFD(bus.OpStopFD); err != nil {
			return err
		}
	}
	if opt.toggleFD {
		if err := c.sendAFD(bus.OpStopFD); err != nil {
			return err
		}
		if err := c.sendAFD(bus.OpStartFD); err != nil {
			return err
		}
	}
	if opt.checkFileDir {
		w, err := c.fdCmd()
		if err != nil {
			return err
		}
		if err := w.Send(bus.OpCheckFileDir); err != nil {
			return err
		}
	}
	if opt.rereadLocInterfaceFile {
		w, err := c.fdCmd()
		if err != nil {
			return err
		}
		if err := w.Send(bus.OpRereadLocInterfaceFile); err != nil {
			return err
		}
	}
	if opt.showExecStat {
		w, err := c.dcCmd()
		if err != nil {
			return err
		}
		if err := w.Send(bus.OpSrExecStat); err != nil {
			return err
		}
	}
	if opt.searchOldFiles {
		w, err := c.dcCmd()
		if err != nil {
			return err
		}
		if err := w.Send(bus.OpSearchOldFiles); err != nil {
			return err
		}
	}
	if opt.forceArchiveCheck {
		w, err := c.awCmd()
		if err != nil {
			return err
		}
		if err := w.Send(bus.OpRetryArchiveCheck); err != nil {
			return err
		}
	}
	return nil
}

func (c *controller) sendAFD(op bus.Opcode) error {
	w, err := c.afdCmd()
	if err != nil {
		return err
	}
	return w.Send(op)
}

// applyHost handles every flag that targets one host alias.
func (c *controller) applyHost(alias string) error {
	row, ok := hostRowForAlias(c.hstTable, alias)
	if !ok {
		return fmt.Errorf("afdcmd: unknown host alias %q", alias)
	}
	if opt.startQueue {
		if err := c.hstTable.ClearFlag(row, hst.PauseQueue); err != nil {
			return err
		}
	}
	if opt.stopQueue {
		if err := c.hstTable.SetFlag(row, hst.PauseQueue); err != nil {
			return err
		}
	}
	if opt.startTransfer {
		if err := c.hstTable.ClearFlag(row, hst.StopTransfer); err != nil {
			return err
		}
	}
	if opt.stopTransfer {
		if err := c.hstTable.SetFlag(row, hst.StopTransfer); err != nil {
			return err
		}
	}
	if opt.enableHost {
		if err := c.hstTable.SetDisabled(row, false); err != nil {
			return err
		}
	}
	if opt.disableHost {
		if err := c.hstTable.SetDisabled(row, true); err != nil {
			return err
		}
	}
	if opt.switchHost {
		if err := c.hstTable.SwitchToggle(row); err != nil {
			return err
		}
	}
	if opt.setRealHostname != "" {
		pos, name, err := parseRealHostname(opt.setRealHostname)
		if err != nil {
			return err
		}
		if err := c.hstTable.SetRealHostname(row, pos, name); err != nil {
			return err
		}
	}
	if opt.retry {
		w, err := c.retryFifo()
		if err != nil {
			return err
		}
		if err := w.Send(row); err != nil {
			return err
		}
	}
	if opt.debugOn {
		if err := c.hstTable.SetDebug(row, hst.Debug); err != nil {
			return err
		}
	}
	if opt.traceOn {
		if err := c.hstTable.SetDebug(row, hst.Trace); err != nil {
			return err
		}
	}
	if opt.fullTrace {
		if err := c.hstTable.SetDebug(row, hst.FullTrace); err != nil {
			return err
		}
	}
	if opt.debugOff {
		if err := c.hstTable.SetDebug(row, hst.Normal); err != nil {
			return err
		}
	}
	if opt.simulateOn {
		if err := c.hstTable.SetFlag(row, hst.SimulateSendMode); err != nil {
			return err
		}
	}
	if opt.simulateOff {
		if err := c.hstTable.ClearFlag(row, hst.SimulateSendMode); err != nil {
			return err
		}
	}
	return nil
}

// applyDir handles every flag that targets one directory alias.
func (c *controller) applyDir(alias string) error {
	row, ok := dirRowForAlias(c.dstTable, alias)
	if !ok {
		return fmt.Errorf("afdcmd: unknown directory alias %q", alias)
	}
	if opt.enableDir {
		if err := c.dstTable.Enable(row); err != nil {
			return err
		}
	}
	if opt.disableDir {
		if err := c.dstTable.Disable(row); err != nil {
			return err
		}
	}
	if opt.rescan {
		if _, err := c.dstTable.ForceRescan(row, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

func parseRealHostname(spec string) (int, string, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("afdcmd: --set-real-hostname wants pos:name, got %q", spec)
	}
	pos, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("afdcmd: bad --set-real-hostname position %q: %w", parts[0], err)
	}
	return pos, parts[1], nil
}

func hostRowForAlias(t *hst.Table, alias string) (int, bool) {
	for i := 0; i < t.RowCount(); i++ {
		h, err := t.ReadRow(i)
		if err != nil {
			continue
		}
		if h.InConfig && h.HostAlias == alias {
			return i, true
		}
	}
	return 0, false
}

func dirRowForAlias(t *dst.Table, alias string) (int, bool) {
	for i := 0; i < t.RowCount(); i++ {
		d, err := t.ReadRow(i)
		if err != nil {
			continue
		}
		if d.InConfig && d.DirAlias == alias {
			return i, true
		}
	}
	return 0, false
}
