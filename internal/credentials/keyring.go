// Package credentials caches the XNAT password in the operating system's
// secret store so that batch runs only prompt once per user.
package credentials

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

// DefaultService is the keyring service the entries are stored under.
const DefaultService = "OASIS"

// usernameAccount holds the last username used, so later runs can omit it.
const usernameAccount = "username"

var (
	ErrNoPassword = errors.New("credentials: no password provided")
	ErrNoUsername = errors.New("credentials: no username given and none cached")
)

// Credentials is a username/password pair for the XNAT session.
type Credentials struct {
	Username string
	Password string
}

// Prompter asks the user for a secret.
type Prompter func(prompt string) (string, error)

// TerminalPrompt reads a password from the controlling terminal without echo.
func TerminalPrompt(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("read password: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// Cache resolves credentials from the keyring, prompting when needed.
type Cache struct {
	Service string
	Prompt  Prompter
}

// NewCache returns a Cache for service that prompts on the terminal.
func NewCache(service string) *Cache {
	if service == "" {
		service = DefaultService
	}
	return &Cache{Service: service, Prompt: TerminalPrompt}
}

// Resolve returns the credentials for username. An empty username falls back
// to the cached one. With reset, both cached entries are dropped first and
// the password is asked for again. The password and username are stored for
// the next run.
func (c *Cache) Resolve(username string, reset bool) (Credentials, error) {
	if username == "" {
		cached, err := keyring.Get(c.Service, usernameAccount)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return Credentials{}, ErrNoUsername
			}
			return Credentials{}, fmt.Errorf("read cached username: %w", err)
		}
		username = cached
	}

	if reset {
		if err := c.Reset(username); err != nil {
			return Credentials{}, err
		}
	}

	password, err := keyring.Get(c.Service, username)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return Credentials{}, fmt.Errorf("read cached password: %w", err)
	}
	if password == "" || reset {
		password, err = c.Prompt("Enter your password for accessing OASIS data on XNAT Central:")
		if err != nil {
			return Credentials{}, err
		}
		if password == "" {
			return Credentials{}, ErrNoPassword
		}
		if err := keyring.Set(c.Service, username, password); err != nil {
			return Credentials{}, fmt.Errorf("store password: %w", err)
		}
		log.Debugf("Stored password for %s in keyring service %s", username, c.Service)
	}
	if err := keyring.Set(c.Service, usernameAccount, username); err != nil {
		return Credentials{}, fmt.Errorf("store username: %w", err)
	}
	return Credentials{Username: username, Password: password}, nil
}

// Reset removes the cached password of username and the cached username.
// An empty username means the cached one. Missing entries are not an error.
func (c *Cache) Reset(username string) error {
	accounts := []string{usernameAccount}
	if username == "" {
		username, _ = keyring.Get(c.Service, usernameAccount)
	}
	if username != "" {
		accounts = append([]string{username}, accounts...)
	}
	for _, account := range accounts {
		if err := keyring.Delete(c.Service, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("delete keyring entry %s: %w", account, err)
		}
	}
	return nil
}
