package loaders

import (
	"os"

	"github.com/cockroachdb/errors"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	code, err := DecodeSPIRV(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return &Resource{
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     code,
	}, nil
}

// DecodeSPIRV checks size and magic and returns the module as words.
func DecodeSPIRV(data []byte) ([]uint32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.Newf("SPIR-V size %d is not a positive multiple of 4", len(data))
	}
	code := bytesToBytecode(data)
	if code[0] != SPIRVMagic {
		return nil, errors.Newf("bad SPIR-V magic %#08x", code[0])
	}
	return code, nil
}
