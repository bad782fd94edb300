package tunnel

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// LoadHostKey returns the signer an SSH server presents.  With an empty
// path a fresh ed25519 key is generated for this process only, so
// clients running with strict host key checking will not recognise it
// across restarts.
func LoadHostKey(path string) (ssh.Signer, error) {
	if path != "" {
		signer, err := loadSigner(path)
		if err != nil {
			return nil, fmt.Errorf("host key %s: %w", path, err)
		}
		return signer, nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("generating host key: %w", err)
	}
	return signer, nil
}
