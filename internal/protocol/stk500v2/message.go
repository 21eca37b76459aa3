package stk500v2

import "fmt"

// headerSize is start, sequence, two size bytes and token.
const headerSize = 5

// Message is one STK500v2 frame.
type Message struct {
	Sequence byte
	Body     []byte
}

// Encode serializes the message.
func (m *Message) Encode() []byte {
	// Frame format:
	// 0: MESSAGE_START
	// 1: sequence number
	// 2-3: body size (big-endian)
	// 4: TOKEN
	// 5+: body
	// last: XOR of all preceding bytes
	size := len(m.Body)
	frame := make([]byte, 0, headerSize+size+1)
	frame = append(frame, MessageStart, m.Sequence, byte(size>>8), byte(size), Token)
	frame = append(frame, m.Body...)
	return append(frame, Checksum(frame))
}

// Checksum XORs all bytes of data.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// BodySize validates a frame header and returns the announced body size.
func BodySize(header []byte) (int, error) {
	if len(header) < headerSize {
		return 0, fmt.Errorf("header too short: %d bytes", len(header))
	}
	if header[0] != MessageStart {
		return 0, fmt.Errorf("invalid start byte: 0x%02X", header[0])
	}
	if header[4] != Token {
		return 0, fmt.Errorf("invalid token: 0x%02X", header[4])
	}
	return int(header[2])<<8 | int(header[3]), nil
}

// DecodeMessage parses a complete frame.
func DecodeMessage(frame []byte) (*Message, error) {
	size, err := BodySize(frame)
	if err != nil {
		return nil, err
	}

	if len(frame) != headerSize+size+1 {
		return nil, fmt.Errorf("size mismatch: header announces %d bytes, frame has %d", size, len(frame)-headerSize-1)
	}

	want := Checksum(frame[:len(frame)-1])
	if got := frame[len(frame)-1]; got != want {
		return nil, fmt.Errorf("checksum mismatch: expected 0x%02X, got 0x%02X", want, got)
	}

	return &Message{
		Sequence: frame[1],
		Body:     frame[headerSize : headerSize+size],
	}, nil
}
