package tests

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// GetProjectRootPath walks up from the working directory to the directory holding go.mod
func GetProjectRootPath() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	p := wd
	for iterations := 0; iterations <= 10; iterations++ {
		if _, err := os.Stat(filepath.Join(p, "go.mod")); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	panic(fmt.Sprintf("Could not find project root path from %s", wd))
}

// GoldenExtrinsic is one fixture produced by an independent reference implementation
// of the encoder and signer.
type GoldenExtrinsic struct {
	Name              string `json:"name"`
	Seed              string `json:"seed"`
	Protocol          string `json:"protocol"`
	Nonce             uint64 `json:"nonce"`
	GenesisHash       string `json:"genesisHash"`
	CallHex           string `json:"callHex"`
	SigningPayloadHex string `json:"signingPayloadHex"`
	SignatureHex      string `json:"signatureHex"`
	ExtrinsicHex      string `json:"extrinsicHex"`
}

type GoldenFixtures struct {
	Fixtures []*GoldenExtrinsic `json:"fixtures"`
}

func ReadGoldenFixtures(projectRoot string) (*GoldenFixtures, error) {
	filePath := fmt.Sprintf("%s/internal/testData/golden-extrinsics.json", projectRoot)

	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var gf *GoldenFixtures
	if err := json.Unmarshal(file, &gf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file: %w", err)
	}
	return gf, nil
}
