package loaders

import (
	"os"
)

// BinaryLoader reads a file verbatim.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string) (*Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

// bytesToBytecode reads little-endian 32-bit words. A trailing partial word
// is dropped.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
