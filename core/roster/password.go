package roster

import (
	"crypto/rand"
	"io"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

const (
	// PasswordAlphabet holds the 62 symbols generated passwords are drawn from.
	PasswordAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	DefaultPasswordLength = 10
)

var ErrInvalidPasswordLength = errors.New("password length must be positive")

// PasswordGenerator draws each character uniformly from PasswordAlphabet.
// Generated passwords are temporary: students created with one must change it on first login.
type PasswordGenerator struct {
	Length int       // DefaultPasswordLength when zero
	Rand   io.Reader // crypto/rand.Reader when nil
}

func (g PasswordGenerator) Generate() (string, error) {
	n := g.Length
	if n == 0 {
		n = DefaultPasswordLength
	}
	if n < 0 {
		return "", ErrInvalidPasswordLength
	}
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}

	max := big.NewInt(int64(len(PasswordAlphabet)))
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(src, max)
		if err != nil {
			return "", errors.Wrap(err, "reading random source")
		}
		sb.WriteByte(PasswordAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}

// GeneratePassword returns a random password of length n.
func GeneratePassword(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidPasswordLength
	}
	return PasswordGenerator{Length: n}.Generate()
}
