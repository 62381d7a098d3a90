// Package access resolves premium status from access codes.
//
// Codes are never stored or compared in clear text after loading: the
// session keeps the sha256 hex of the code and that hash doubles as the
// premium user's key.
package access

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/Laisky/errors/v2"
)

// HashCode returns the lowercase sha256 hex digest of code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Registry is the immutable set of valid code hashes.
type Registry struct {
	hashes map[string]struct{}
}

// NewRegistry hashes every non-blank code.
func NewRegistry(codes ...string) *Registry {
	r := &Registry{hashes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			r.hashes[HashCode(c)] = struct{}{}
		}
	}
	return r
}

// Parse reads one code per line.
func Parse(r io.Reader) (*Registry, error) {
	var codes []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		codes = append(codes, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read access codes")
	}
	return NewRegistry(codes...), nil
}

// LoadFile reads the codes file. A missing file yields an empty registry and
// exists=false, so every user is on the free tier.
func LoadFile(path string) (reg *Registry, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(), false, nil
		}
		return nil, false, errors.Wrapf(err, "open codes file %s", path)
	}
	defer f.Close()

	reg, err = Parse(f)
	if err != nil {
		return nil, true, errors.Wrapf(err, "parse codes file %s", path)
	}
	return reg, true, nil
}

// IsPremium reports whether hash belongs to a valid code.
func (r *Registry) IsPremium(hash string) bool {
	if hash == "" {
		return false
	}
	_, ok := r.hashes[strings.ToLower(hash)]
	return ok
}

// Validate checks a clear-text code and returns its hash when valid.
func (r *Registry) Validate(code string) (hash string, ok bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	hash = HashCode(code)
	return hash, r.IsPremium(hash)
}

func (r *Registry) Len() int { return len(r.hashes) }
