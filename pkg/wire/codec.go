// Package wire implements the EV3-UART message codec: header packing,
// payload-length decoding, and the XOR checksum used on every frame.
package wire

import "fmt"

// MessageClass is the two-bit TT field of a header byte.
type MessageClass uint8

const (
	ClassSys  MessageClass = 0x00
	ClassCmd  MessageClass = 0x40
	ClassInfo MessageClass = 0x80
	ClassData MessageClass = 0xC0

	classMask = 0xC0
	sizeMask  = 0x38
	sizeShift = 3
	cmdMask   = 0x07
)

// SYS single-byte command codes.
const (
	SysSync SysCommand = 0x00
	SysNack SysCommand = 0x02
	SysAck  SysCommand = 0x04
	SysEsc  SysCommand = 0x06
)

// SysCommand is the command nibble of a SYS-class header.
type SysCommand uint8

// CMD-class command codes.
const (
	CmdType   Command = 0
	CmdModes  Command = 1
	CmdSpeed  Command = 2
	CmdSelect Command = 3
	CmdWrite  Command = 4
)

// Command is the command nibble of a CMD or DATA-class header.
type Command uint8

// INFO-class subcommand codes. The mode index these records describe
// is carried in the low 3 bits of the header's command nibble.
const (
	InfoName   InfoSubCommand = 0x00
	InfoRaw    InfoSubCommand = 0x01
	InfoPct    InfoSubCommand = 0x02
	InfoSI     InfoSubCommand = 0x03
	InfoUnits  InfoSubCommand = 0x04
	InfoFormat InfoSubCommand = 0x80
)

// InfoSubCommand is the subcommand byte that follows an INFO header.
type InfoSubCommand uint8

// Format is the wire representation of a mode's DATA values.
type Format uint8

const (
	FormatS8 Format = iota
	FormatS16
	FormatS32
	FormatFloat
)

// SizeOf returns the byte width of a single scalar in this format.
func (f Format) SizeOf() int {
	switch f {
	case FormatS8:
		return 1
	case FormatS16:
		return 2
	case FormatS32, FormatFloat:
		return 4
	default:
		return 1
	}
}

// Class extracts the message class from a header byte.
func Class(header byte) MessageClass {
	return MessageClass(header & classMask)
}

// CommandNibble extracts the low 3 bits of a header byte.
func CommandNibble(header byte) uint8 {
	return header & cmdMask
}

// PayloadLenFromHeader returns 2^SSS, the declared payload length
// encoded in bits 3-5 of the header byte.
func PayloadLenFromHeader(header byte) int {
	return 1 << ((header & sizeMask) >> sizeShift)
}

// MsgSize returns the total frame length in bytes (header included)
// for a message whose first byte is header, per spec.md §4.1.
func MsgSize(header byte) int {
	if Class(header) == ClassSys {
		return 1
	}
	payload := PayloadLenFromHeader(header)
	size := 1 + payload + 1
	if Class(header) == ClassInfo {
		size++ // INFO frames carry a subcommand byte ahead of the payload
	}
	return size
}

// log2PowerOfTwo returns floor(log2(n)) for n a power of two in [1, 32].
func log2PowerOfTwo(n int) (uint8, error) {
	switch n {
	case 1:
		return 0, nil
	case 2:
		return 1, nil
	case 4:
		return 2, nil
	case 8:
		return 3, nil
	case 16:
		return 4, nil
	case 32:
		return 5, nil
	default:
		return 0, fmt.Errorf("wire: payload length %d is not a power of two in [1, 32]", n)
	}
}

// EncodeHeader packs message class, payload length, and command nibble
// into a single header byte, per spec.md §4.1.
func EncodeHeader(class MessageClass, payloadLen int, cmd uint8) (byte, error) {
	if cmd > cmdMask {
		return 0, fmt.Errorf("wire: command nibble %d out of range", cmd)
	}
	exp, err := log2PowerOfTwo(payloadLen)
	if err != nil {
		return 0, err
	}
	return byte(class) | (exp << sizeShift) | (cmd & cmdMask), nil
}

// DecodeHeader is the inverse of EncodeHeader: it returns the message
// class, declared payload length, and command nibble packed into header.
func DecodeHeader(header byte) (class MessageClass, payloadLen int, cmd uint8) {
	return Class(header), PayloadLenFromHeader(header), CommandNibble(header)
}

// Checksum computes the XOR checksum of data starting from the 0xFF
// seed, per spec.md §4.1.
func Checksum(data []byte) byte {
	sum := byte(0xFF)
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// VerifyChecksum reports whether the last byte of frame matches the
// XOR checksum of the preceding bytes.
func VerifyChecksum(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	return Checksum(frame[:len(frame)-1]) == frame[len(frame)-1]
}
