// Package secret resolves named secrets, such as database passwords, that
// should not be written into config files or saved reports.
package secret

import (
	"os"
	"regexp"
	"strings"
)

// DBPasswordEnv holds the database password used when a database source
// names neither a password nor a passwordSecret.
const DBPasswordEnv = "CUSTQUERY_DB_PASSWORD"

// Store looks secrets up by name. A missing secret is reported with
// ok == false and a nil error.
type Store interface {
	Lookup(name string) (value string, ok bool, err error)
}

// Chain tries each store in order and returns the first hit.
type Chain []Store

func (c Chain) Lookup(name string) (string, bool, error) {
	for _, s := range c {
		v, ok, err := s.Lookup(name)
		if err != nil || ok {
			return v, ok, err
		}
	}
	return "", false, nil
}

// EnvStore reads CUSTQUERY_SECRET_<NAME>, with NAME upper-cased and every
// run of non-alphanumeric characters replaced by "_".
type EnvStore struct{}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// EnvName returns the environment variable EnvStore reads for name.
func EnvName(name string) string {
	return "CUSTQUERY_SECRET_" + nonAlnum.ReplaceAllString(strings.ToUpper(name), "_")
}

func (EnvStore) Lookup(name string) (string, bool, error) {
	v, ok := os.LookupEnv(EnvName(name))
	return v, ok && v != "", nil
}

// Default returns the environment, then the macOS keychain.
func Default() Store {
	return Chain{EnvStore{}, NewKeychainStore()}
}
