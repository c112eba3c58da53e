package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXT record keys of a model server.
const (
	// TXTKeyProtocol is the model protocol version.
	TXTKeyProtocol = "proto"

	// TXTKeyChipID is a short prefix of the chip ID in hex.
	TXTKeyChipID = "id"

	// TXTKeyRiscvFW and TXTKeySpectFW are the firmware versions.
	TXTKeyRiscvFW = "fw"
	TXTKeySpectFW = "spect"

	// TXTKeySlots lists the paired slots, e.g. "0,1".
	TXTKeySlots = "slots"
)

// ProtocolVersion is the model protocol version advertised.
const ProtocolVersion = 1

// ModelTXT is the TXT record of a model server.
type ModelTXT struct {
	Protocol int
	ChipID   string
	RiscvFW  string
	SpectFW  string
	Slots    []int
}

// Encode returns the TXT strings. Empty fields are omitted.
func (m *ModelTXT) Encode() []string {
	proto := m.Protocol
	if proto == 0 {
		proto = ProtocolVersion
	}
	out := []string{fmt.Sprintf("%s=%d", TXTKeyProtocol, proto)}
	if m.ChipID != "" {
		out = append(out, TXTKeyChipID+"="+m.ChipID)
	}
	if m.RiscvFW != "" {
		out = append(out, TXTKeyRiscvFW+"="+m.RiscvFW)
	}
	if m.SpectFW != "" {
		out = append(out, TXTKeySpectFW+"="+m.SpectFW)
	}
	if len(m.Slots) > 0 {
		slots := make([]string, len(m.Slots))
		for i, s := range m.Slots {
			slots[i] = strconv.Itoa(s)
		}
		out = append(out, TXTKeySlots+"="+strings.Join(slots, ","))
	}
	return out
}

// ParseTXT parses raw TXT record strings into a map.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		if idx := strings.IndexByte(record, '='); idx > 0 {
			result[record[:idx]] = record[idx+1:]
		}
	}
	return result
}

// ParseModelTXT parses raw TXT records into ModelTXT.
func ParseModelTXT(records []string) (*ModelTXT, error) {
	m := ParseTXT(records)
	txt := &ModelTXT{
		ChipID:  m[TXTKeyChipID],
		RiscvFW: m[TXTKeyRiscvFW],
		SpectFW: m[TXTKeySpectFW],
	}

	proto, ok := m[TXTKeyProtocol]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTXTRecord, TXTKeyProtocol)
	}
	v, err := strconv.Atoi(proto)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyProtocol, proto)
	}
	txt.Protocol = v

	if slots := m[TXTKeySlots]; slots != "" {
		for _, s := range strings.Split(slots, ",") {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeySlots, slots)
			}
			txt.Slots = append(txt.Slots, n)
		}
	}
	return txt, nil
}
