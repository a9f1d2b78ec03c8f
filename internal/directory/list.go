package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ReadList loads a JSON array of server addresses written by WriteList.
func ReadList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server list: %w", err)
	}

	var servers []string
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("decode server list: %w", err)
	}
	if len(servers) == 0 {
		return nil, errors.New("server list is empty")
	}

	return servers, nil
}

func WriteList(path string, servers []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create list dir: %w", err)
	}

	data, err := json.MarshalIndent(servers, "", "  ")
	if err != nil {
		return fmt.Errorf("encode server list: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write server list: %w", err)
	}

	return nil
}
