package hst

import "encoding/binary"

// MaxNoParallelJobs bounds the number of Job Status slots a single
// host row can carry (spec.md §3.1, AllowedTransfers <= MaxNoParallelJobs).
const MaxNoParallelJobs = 10

const (
	hostAliasLen     = 32
	realHostnameLen  = 64
	hostToggleStrLen = 2
)

// Byte layout of one HST row. Fields are grouped by lock region so that
// a region's bytes form one contiguous span: [HS group][TFC group][JOB
// group]. Region offsets below are this package's private concern;
// callers (Table methods) never compute them.
const (
	offHostID           = 0
	offHostAlias        = offHostID + 4
	offToggleStr        = offHostAlias + hostAliasLen
	offRealHostname0    = offToggleStr + hostToggleStrLen
	offRealHostname1    = offRealHostname0 + realHostnameLen
	offProtocol         = offRealHostname1 + realHostnameLen
	offAllowedTransfers = offProtocol + 4
	offHostStatus       = offAllowedTransfers + 1
	offSpecialFlag      = offHostStatus + 4
	offDebug            = offSpecialFlag + 2
	offTogglePos        = offDebug + 1
	offHostToggle       = offTogglePos + 1
	offStartEventHandle = offHostToggle + 1
	offEndEventHandle   = offStartEventHandle + 8
	offInConfig         = offEndEventHandle + 8
	hsGroupEnd          = offInConfig + 1

	offTotalFileCounter = hsGroupEnd
	offTotalFileSize    = offTotalFileCounter + 8
	offErrorCounter     = offTotalFileSize + 8
	offMaxErrors        = offErrorCounter + 4
	tfcGroupEnd         = offMaxErrors + 4

	jobSlotSize = 4 + 1 + 4 + 4 + 8 + 8 // ProcID, ConnectStatus, NoOfFiles, NoOfFilesDone, BytesSend, LastActivity(unixnano)
	offJobs     = tfcGroupEnd
	rowSize     = offJobs + MaxNoParallelJobs*jobSlotSize
)

// RowSize is the fixed byte size of one HST row.
const RowSize = rowSize

func putString(b []byte, off, n int, s string) {
	for i := range b[off : off+n] {
		b[off+i] = 0
	}
	copy(b[off:off+n], s)
}

func getString(b []byte, off, n int) string {
	raw := b[off : off+n]
	end := n
	for i, c := range raw {
		if c == 0 {
			end = i
			break
		}
	}
	return string(raw[:end])
}

func putTime64(b []byte, off int, nanos int64) {
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(nanos))
}

func getTime64(b []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(b[off : off+8]))
}
