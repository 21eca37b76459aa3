package avr109

// AVR109 commands
const (
	CmdSoftwareID       = 'S'
	CmdSoftwareVersion  = 'V'
	CmdProgrammerType   = 'p'
	CmdAutoIncrement    = 'a'
	CmdBlockSupport     = 'b'
	CmdSupportedDevices = 't'
	CmdSelectDevice     = 'T'
	CmdReadSignature    = 's'
	CmdEnterProgmode    = 'P'
	CmdLeaveProgmode    = 'L'
	CmdExitBootloader   = 'E'
	CmdSetAddress       = 'A'
	CmdBlockWrite       = 'B'
	CmdBlockRead        = 'g'
)

// Replies
const (
	RespCR  = '\r'
	RespYes = 'Y'
)

// maxDeviceCodes bounds the device list read after CmdSupportedDevices.
const maxDeviceCodes = 64
