package garmin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/oauth2"

	"github.com/jbctechsolutions/activitysync/internal/infrastructure/crypto"
)

// TokenFile is the name of the encrypted token inside the session directory.
const TokenFile = "oauth2_token.enc"

// SessionCache persists the OAuth2 token between runs, encrypted at rest.
// Its content is opaque to everything outside this package.
type SessionCache struct {
	fs  billy.Filesystem
	enc *crypto.Encryptor
}

// NewSessionCache creates a cache rooted at fs.
func NewSessionCache(fs billy.Filesystem, enc *crypto.Encryptor) *SessionCache {
	return &SessionCache{fs: fs, enc: enc}
}

// Load returns the cached token, or nil when there is none or it cannot be
// decrypted with the current key.
func (s *SessionCache) Load() (*oauth2.Token, error) {
	data, err := util.ReadFile(s.fs, TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	plain, err := s.enc.Decrypt(string(data))
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidCiphertext) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(plain), &tok); err != nil {
		return nil, nil
	}
	return &tok, nil
}

// Save stores the token, replacing any previous one.
func (s *SessionCache) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	sealed, err := s.enc.Encrypt(string(data))
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	if err := util.WriteFile(s.fs, TokenFile, []byte(sealed), 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Clear removes the cached token.
func (s *SessionCache) Clear() error {
	err := s.fs.Remove(TokenFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
