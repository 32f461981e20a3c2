package token

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"math/big"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeGenerationFailed identifies token generation failures.
	TextCodeGenerationFailed = "TOKEN_GENERATION_FAILED"

	digits   = "0123456789"
	letters  = "ABCDEFGHJKMNPQRSTUVWXYZ"
	alphabet = "23456789" + letters
)

// ErrGeneration is the sentinel wrapped by every generation failure.
var ErrGeneration = goerrors.New("unable to generate token", goerrors.CategoryInternal).
	WithTextCode(TextCodeGenerationFailed).
	WithCode(goerrors.CodeInternal)

// Generator produces long and short tokens.
type Generator interface {
	Long(byteLength int) (string, error)
	Short(length int, digitsOnly bool) (string, error)
}

// RandomGenerator draws tokens from a cryptographically secure source.
type RandomGenerator struct {
	reader io.Reader
}

var _ Generator = (*RandomGenerator)(nil)

// New returns a generator backed by crypto/rand.
func New() *RandomGenerator {
	return &RandomGenerator{reader: rand.Reader}
}

// NewWithReader returns a generator reading randomness from r.
// Tests use it to simulate an unavailable random source.
func NewWithReader(r io.Reader) *RandomGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &RandomGenerator{reader: r}
}

var defaultGenerator = New()

// Long returns a hex token of 2*byteLength characters using crypto/rand.
func Long(byteLength int) (string, error) {
	return defaultGenerator.Long(byteLength)
}

// Short returns a short token of exactly length characters using crypto/rand.
func Short(length int, digitsOnly bool) (string, error) {
	return defaultGenerator.Short(length, digitsOnly)
}

// Long returns a hex token of 2*byteLength characters.
func (g *RandomGenerator) Long(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", generationError(nil, "long token length must be positive", byteLength)
	}

	buf := make([]byte, byteLength)
	if _, err := io.ReadFull(g.source(), buf); err != nil {
		return "", generationError(err, "random source unavailable", byteLength)
	}

	return hex.EncodeToString(buf), nil
}

// Short returns a token of exactly length characters. In digit mode every
// character is drawn uniformly from 0-9. Otherwise characters come from the
// unambiguous alphabet and the result always holds at least one letter.
func (g *RandomGenerator) Short(length int, digitsOnly bool) (string, error) {
	if length <= 0 {
		return "", generationError(nil, "short token length must be positive", length)
	}

	set := alphabet
	if digitsOnly {
		set = digits
	}

	out, err := g.draw(set, length)
	if err != nil {
		return "", generationError(err, "random source unavailable", length)
	}

	if digitsOnly || strings.IndexFunc(out, isLetter) >= 0 {
		return out, nil
	}

	// every char came out numeric, swap one position for a letter
	pos, err := g.index(length)
	if err != nil {
		return "", generationError(err, "random source unavailable", length)
	}
	letter, err := g.draw(letters, 1)
	if err != nil {
		return "", generationError(err, "random source unavailable", length)
	}

	return out[:pos] + letter + out[pos+1:], nil
}

func (g *RandomGenerator) draw(set string, n int) (string, error) {
	var b strings.Builder
	b.Grow(n)

	for i := 0; i < n; i++ {
		idx, err := g.index(len(set))
		if err != nil {
			return "", err
		}
		b.WriteByte(set[idx])
	}

	return b.String(), nil
}

func (g *RandomGenerator) index(n int) (int, error) {
	v, err := rand.Int(g.source(), big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func (g *RandomGenerator) source() io.Reader {
	if g == nil || g.reader == nil {
		return rand.Reader
	}
	return g.reader
}

func isLetter(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

func generationError(err error, reason string, length int) *goerrors.Error {
	var out *goerrors.Error
	if err != nil {
		out = goerrors.Wrap(err, goerrors.CategoryInternal, ErrGeneration.Message)
	} else {
		out = goerrors.New(ErrGeneration.Message, goerrors.CategoryInternal)
	}

	return out.
		WithTextCode(TextCodeGenerationFailed).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{
			"reason": reason,
			"length": length,
		})
}
