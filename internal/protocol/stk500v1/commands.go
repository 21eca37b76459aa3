package stk500v1

// STK500v1 commands
const (
	CmdGetSync       = 0x30
	CmdGetParameter  = 0x41
	CmdSetDevice     = 0x42
	CmdEnterProgmode = 0x50
	CmdLeaveProgmode = 0x51
	CmdLoadAddress   = 0x55
	CmdProgramPage   = 0x64
	CmdReadPage      = 0x74
	CmdReadSignature = 0x75
)

// Framing bytes
const (
	SyncCRCEOP = 0x20
	RespInSync = 0x14
	RespOK     = 0x10
	RespFailed = 0x11
	RespNoSync = 0x15
)

// Parameters read during initialization
const (
	ParamHWVersion = 0x80
	ParamSWMajor   = 0x81
	ParamSWMinor   = 0x82
)

// MaxSyncAttempts bounds GET_SYNC retries.
const MaxSyncAttempts = 20
