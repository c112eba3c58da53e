package l3

import "fmt"

// CommandCode identifies a secure command.
type CommandCode uint8

// Command codes.
const (
	CmdPing                 CommandCode = 0x01
	CmdPairingKeyWrite      CommandCode = 0x10
	CmdPairingKeyRead       CommandCode = 0x11
	CmdPairingKeyInvalidate CommandCode = 0x12
	CmdRandomValueGet       CommandCode = 0x50
	CmdEccKeyGenerate       CommandCode = 0x60
	CmdEccKeyRead           CommandCode = 0x62
	CmdEccKeyErase          CommandCode = 0x63
	CmdEcdsaSign            CommandCode = 0x70
	CmdEddsaSign            CommandCode = 0x71
	CmdMCounterInit         CommandCode = 0x80
	CmdMCounterUpdate       CommandCode = 0x81
	CmdMCounterGet          CommandCode = 0x82
)

var commandNames = map[CommandCode]string{
	CmdPing:                 "Ping",
	CmdPairingKeyWrite:      "PairingKeyWrite",
	CmdPairingKeyRead:       "PairingKeyRead",
	CmdPairingKeyInvalidate: "PairingKeyInvalidate",
	CmdRandomValueGet:       "RandomValueGet",
	CmdEccKeyGenerate:       "EccKeyGenerate",
	CmdEccKeyRead:           "EccKeyRead",
	CmdEccKeyErase:          "EccKeyErase",
	CmdEcdsaSign:            "EcdsaSign",
	CmdEddsaSign:            "EddsaSign",
	CmdMCounterInit:         "MCounterInit",
	CmdMCounterUpdate:       "MCounterUpdate",
	CmdMCounterGet:          "MCounterGet",
}

func (c CommandCode) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CommandCode(0x%02x)", uint8(c))
}

// Status is the first plaintext byte of a result.
type Status uint8

// Result statuses.
const (
	StatusOK           Status = 0xC3
	StatusFail         Status = 0x3C
	StatusUnauthorized Status = 0x01
	StatusInvalidCmd   Status = 0x02
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFail:
		return "Fail"
	case StatusUnauthorized:
		return "Unauthorized"
	case StatusInvalidCmd:
		return "InvalidCmd"
	default:
		return fmt.Sprintf("Status(0x%02x)", uint8(s))
	}
}
