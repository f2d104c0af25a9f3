package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

const keychainService = "custquery"

// KeychainStore reads generic passwords from the macOS Keychain via the
// `security` CLI. On other systems every lookup misses.
type KeychainStore struct {
	service string
}

func NewKeychainStore() *KeychainStore {
	return &KeychainStore{service: keychainService}
}

func (k *KeychainStore) Lookup(name string) (string, bool, error) {
	if runtime.GOOS != "darwin" {
		return "", false, nil
	}
	cmd := exec.Command("security", "find-generic-password",
		"-a", name,
		"-s", k.service,
		"-w", // print only the password
	)
	out, err := cmd.Output()
	if err != nil {
		// exit code 44: item not found
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("keychain lookup %q: %w", name, err)
	}
	return strings.TrimSpace(string(out)), true, nil
}
