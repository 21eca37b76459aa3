package stk500v2

// STK500v2 commands
const (
	CmdSignOn           = 0x01
	CmdGetParameter     = 0x03
	CmdLoadAddress      = 0x06
	CmdEnterProgmodeISP = 0x10
	CmdLeaveProgmodeISP = 0x11
	CmdProgramFlashISP  = 0x13
	CmdReadFlashISP     = 0x14
	CmdReadSignatureISP = 0x1B
)

// Message framing
const (
	MessageStart = 0x1B
	Token        = 0x0E
)

// Status codes
const (
	StatusCmdOK           = 0x00
	StatusCmdTOut         = 0x80
	StatusRdyBsyTOut      = 0x81
	StatusSetParamMissing = 0xC1
	StatusCmdFailed       = 0xC0
	StatusCmdUnknown      = 0xC9
)

// Parameters read during initialization
const (
	ParamHWVersion = 0x90
	ParamSWMajor   = 0x91
	ParamSWMinor   = 0x92
)

// MaxSyncAttempts bounds SIGN_ON retries.
const MaxSyncAttempts = 20

// Sign-on answers of the supported bootloaders
var signOnIDs = []string{"AVRISP_2", "STK500_2"}

// ISP timing and instruction bytes used by the Arduino Mega bootloader
const (
	ispTimeout     = 200
	ispStabDelay   = 100
	ispCmdExeDelay = 25
	ispSynchLoops  = 32
	ispByteDelay   = 0
	ispPollValue   = 0x53
	ispPollIndex   = 3

	flashWriteMode  = 0xC1
	flashWriteDelay = 10
	flashWriteCmd   = 0x40
	flashPollCmd    = 0x4C
	flashReadCmd    = 0x20

	readSignatureCmd = 0x30
)

// StatusMessage returns a readable form of a status byte.
func StatusMessage(status byte) string {
	switch status {
	case StatusCmdOK:
		return "ok"
	case StatusCmdTOut:
		return "command timeout"
	case StatusRdyBsyTOut:
		return "ready/busy timeout"
	case StatusSetParamMissing:
		return "parameter missing"
	case StatusCmdFailed:
		return "command failed"
	case StatusCmdUnknown:
		return "unknown command"
	default:
		return "unknown status"
	}
}
