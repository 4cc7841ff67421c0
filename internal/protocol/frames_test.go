package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"
	"time"
)

// Frames captured from real units.
const (
	// ASIN AQUA NET with free chlorine probe, clock not set.
	frameNetCLF = "069187240901ffffffffffff000402da0027ffff0095ff01400149ff000006640000000000ff006c" +
		"069187240903ffffffffffff480a08ffffffffffffffffff027e0149ffffffffffffffffffffffea" +
		"069187240902ffffffffffff0001003cffff003cffff010383ff00781e02581e28ffffffff0049a9"

	// ASIN AQUA HOME, arrived shifted by 8 bytes.
	frameHomeShifted = "0f0f1e14ffbf02970690cf4a0301190a12103232000402cb015201520152a3fe700099fe00080000" +
		"00000000001302670690cf4a0303190a121032324842011d080f122d15001737027600a9000c1e0a" +
		"012801e00e10a2020690cf4a0302190a12103232002d003c003c003c000a1e3c6e9600f00802580f"

	// ASIN AQUA Salt with free chlorine probe.
	frameSalt = "0690ffff0d01190519160832000002c6006c0249200000fe7000e0fe00400000000000000033001f" +
		"0690ffff0d031905191608324809001b07000b1e0c1e1500030c00e8000c1e0aff2800780e1081bd" +
		"0690ffff0d02190519160832003c003c3a1066ff003c1e3c6e9603840a0bb80f0900b505fff401eb"

	// ASIN AQUA NET with redox probe, clock not set.
	frameNetRedox = "0691ffff0a01ffffffffffff000002d002bfffff02bfff01bc00ffffaa0000080000000000ff0173" +
		"0691ffff0a03ffffffffffff484608ffffffffffffffffff02d100ffffffffffffffffffffffff97" +
		"0691ffff0a02ffffffffffff0007003cffff003cffff010181ff012c0102581e28ffffffff0048cd"

	// ASIN AQUA NET with free chlorine probe, second unit.
	frameNetCLF2 = "0690ffff0901ffffffffffff0000027300caffff0140ff0c3c0120ffaa000d340000000000ff007f" +
		"0690ffff0903ffffffffffff480608ffffffffffffffffff02720128ffffffffffffffffffffffe5" +
		"0690ffff0902ffffffffffff0026003cffff003cffff010183ff012c0502581e28ffffffff0047a2"
)

var fixedNow = time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)

func testDecoder() *Decoder {
	return &Decoder{
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("invalid hex fixture: %v", err)
	}
	if len(b) != FrameSize {
		t.Fatalf("fixture is %d bytes, want %d", len(b), FrameSize)
	}
	return b
}

// baseFrame returns a zero-filled HOME/REDOX frame with a valid clock and
// plausible pH values.
func baseFrame() []byte {
	data := make([]byte, FrameSize)
	binary.BigEndian.PutUint32(data[0:4], 1234)
	data[4] = 0x02 // redox installed, CLF missing
	data[6] = 24   // 2024
	data[7] = 6
	data[8] = 15
	data[9] = 12
	data[10] = 34
	data[11] = 56
	binary.BigEndian.PutUint16(data[14:16], 720)
	binary.BigEndian.PutUint16(data[25:27], 245)
	data[28] = WaterFlowToProbes
	data[29] = StatusPumpRunning
	data[52] = 72
	data[54] = 5
	data[55] = 28
	data[56], data[57] = 8, 0
	data[58], data[59] = 10, 0
	data[60], data[61] = 14, 0
	data[62], data[63] = 16, 0
	data[68] = 3
	data[69], data[70] = 2, 30
	data[71] = 2
	binary.BigEndian.PutUint16(data[74:76], 120)
	binary.BigEndian.PutUint16(data[92:94], 5000)
	binary.BigEndian.PutUint16(data[94:96], 60)
	binary.BigEndian.PutUint16(data[106:108], 30)
	return data
}

// withMarkers stamps the sub-block markers and repeated serial onto data.
func withMarkers(data []byte) []byte {
	data[MarkerOffsetBlock1] = MarkerBlock1
	data[MarkerOffsetBlock2] = MarkerBlock2
	data[MarkerOffsetBlock3] = MarkerBlock3
	copy(data[BlockSize:BlockSize+IdentityLength], data[:IdentityLength])
	copy(data[2*BlockSize:2*BlockSize+IdentityLength], data[:IdentityLength])
	return data
}
