package wire

import "testing"

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	classes := []MessageClass{ClassSys, ClassCmd, ClassInfo, ClassData}
	sizes := []int{1, 2, 4, 8, 16, 32}

	for _, class := range classes {
		for _, size := range sizes {
			for cmd := uint8(0); cmd <= 7; cmd++ {
				header, err := EncodeHeader(class, size, cmd)
				if err != nil {
					t.Fatalf("EncodeHeader(%v, %d, %d) error: %v", class, size, cmd, err)
				}
				gotClass, gotSize, gotCmd := DecodeHeader(header)
				if gotClass != class || gotSize != size || gotCmd != cmd {
					t.Errorf("round trip mismatch: encoded (%v,%d,%d) -> header 0x%02x -> decoded (%v,%d,%d)",
						class, size, cmd, header, gotClass, gotSize, gotCmd)
				}
			}
		}
	}
}

func TestEncodeHeaderRejectsNonPowerOfTwo(t *testing.T) {
	for _, bad := range []int{0, 3, 5, 6, 7, 9, 64} {
		if _, err := EncodeHeader(ClassCmd, bad, 0); err == nil {
			t.Errorf("EncodeHeader accepted invalid payload length %d", bad)
		}
	}
}

func TestMsgSizeSys(t *testing.T) {
	header := byte(ClassSys) | byte(SysAck)
	if got := MsgSize(header); got != 1 {
		t.Errorf("MsgSize(SYS) = %d, want 1", got)
	}
}

func TestMsgSizeCmd(t *testing.T) {
	// CMD_MODES with a 1-byte payload: header + 1 payload byte + checksum = 3.
	header, err := EncodeHeader(ClassCmd, 1, uint8(CmdModes))
	if err != nil {
		t.Fatal(err)
	}
	if got := MsgSize(header); got != 3 {
		t.Errorf("MsgSize(CMD, 1-byte payload) = %d, want 3", got)
	}
}

func TestMsgSizeInfoHasExtraSubcommandByte(t *testing.T) {
	header, err := EncodeHeader(ClassInfo, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	// header + subcommand + 1 payload byte + checksum = 4.
	if got := MsgSize(header); got != 4 {
		t.Errorf("MsgSize(INFO, 1-byte payload) = %d, want 4", got)
	}
}

func TestChecksum(t *testing.T) {
	// TYPE frame from the happy-handshake scenario: 40 10 AF.
	frame := []byte{0x40, 0x10}
	if got := Checksum(frame); got != 0xAF {
		t.Errorf("Checksum(%v) = 0x%02x, want 0xaf", frame, got)
	}
	full := []byte{0x40, 0x10, 0xAF}
	if !VerifyChecksum(full) {
		t.Errorf("VerifyChecksum(%v) = false, want true", full)
	}
}

func TestVerifyChecksumEmpty(t *testing.T) {
	if VerifyChecksum(nil) {
		t.Error("VerifyChecksum(nil) = true, want false")
	}
}
