package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrNoToken is returned by LoadToken when the token file does not exist.
var ErrNoToken = errors.New("no saved token, run the 'auth' command first")

// SaveToken writes a token to path, readable only by the owner.
func SaveToken(path string, token *Token) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(token); err != nil {
		f.Close()
		return fmt.Errorf("unable to write token file: %w", err)
	}
	return f.Close()
}

// LoadToken reads a token saved by SaveToken.
func LoadToken(path string) (*Token, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("unable to parse token file %s: %w", path, err)
	}
	return tok, nil
}
