package bus

// FDCmdReader demultiplexes FD_CMD_FIFO, which carries two different
// frame shapes on the same pipe: the fixed single-byte opcodes of
// OpCheckFileDir/OpRereadLocInterfaceFile, and the variable-length
// opcode+alias+NUL framing DeleteFifo.ForceRemoteDirCheck uses to name
// its target directory (see DeleteFifo's doc comment). A plain
// CmdReader cannot tell these apart since it always reads exactly one
// byte, so it would desynchronize the stream the first time a
// FORCE_REMOTE_DIR_CHECK frame arrives.
type FDCmdReader struct {
	r           *Fifo
	maxAliasLen int
}

// NewFDCmdReader wraps an already-open reader fifo. maxAliasLen bounds
// the alias read for OpForceRemoteDirCheck frames.
func NewFDCmdReader(r *Fifo, maxAliasLen int) *FDCmdReader {
	return &FDCmdReader{r: r, maxAliasLen: maxAliasLen}
}

// Recv reads the next FD_CMD_FIFO frame. alias is non-empty only when
// op is OpForceRemoteDirCheck.
func (c *FDCmdReader) Recv() (op Opcode, alias string, err error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, "", err
	}
	op = Opcode(b)
	if op != OpForceRemoteDirCheck {
		return op, "", nil
	}
	alias, err = c.r.ReadUntilNUL(c.maxAliasLen)
	if err != nil {
		return 0, "", err
	}
	return op, alias, nil
}

// Close closes the underlying fifo.
func (c *FDCmdReader) Close() error { return c.r.Close() }
