package loaders

import (
	"bufio"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// MaterialConfig names the textures of one material. Map paths are relative
// to the asset root; an empty map leaves that texture off.
type MaterialConfig struct {
	Name      string
	AlbedoMap string
	NormalMap string
}

// MaterialLoader parses key = value material files.
type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string) (*Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg, err := ParseMaterial(bufio.NewScanner(file))
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return &Resource{
		FullPath: path,
		DataSize: 1,
		Data:     cfg,
	}, nil
}

func ParseMaterial(scanner *bufio.Scanner) (*MaterialConfig, error) {
	materialConfig := &MaterialConfig{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			core.LogWarn("Skipping invalid line: %s", line)
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "name":
			materialConfig.Name = value
		case "albedo_map":
			materialConfig.AlbedoMap = value
		case "normal_map":
			materialConfig.NormalMap = value
		default:
			core.LogWarn("Unknown key '%s' found in material. Skipping...", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if materialConfig.Name == "" {
		return nil, errors.New("material name is required")
	}
	return materialConfig, nil
}
