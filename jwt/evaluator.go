package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MaxSkew bounds the proactive refresh window accepted by [NewEvaluator].
const MaxSkew = 5 * time.Minute

var (
	// ErrMalformed is returned by [Decode] when the payload cannot be decoded.
	ErrMalformed = errors.New("malformed credential")
	// ErrMissingExpiry is returned by [Decode] when the payload has no exp claim.
	ErrMissingExpiry = errors.New("credential has no expiry")
)

// Classification is the outcome of [Evaluator.Classify].
type Classification uint8

const (
	// Malformed means the claims could not be decoded or carry no expiry.
	Malformed Classification = iota
	// Valid means the credential expires strictly after the evaluation instant.
	Valid
	// Expired means the credential expiry is at or before the evaluation instant.
	Expired
)

func (c Classification) String() string {
	switch c {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	default:
		return "malformed"
	}
}

// NeedsRefresh reports whether the credential must be replaced before use.
func (c Classification) NeedsRefresh() bool {
	return c != Valid
}

// Claims holds the decoded, unverified payload of a credential.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	Extra     map[string]any
}

// Config controls evaluation. Zero values are valid: wall clock and no skew.
type Config struct {
	// Now supplies the evaluation instant. Defaults to time.Now.
	Now func() time.Time
	// Skew treats credentials expiring within this window as already expired.
	Skew time.Duration
}

// Evaluator classifies credentials against a clock. Safe for concurrent use.
type Evaluator struct {
	now    func() time.Time
	skew   time.Duration
	parser *jwt.Parser
}

// NewEvaluator validates cfg and returns an [Evaluator].
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.Skew < 0 || cfg.Skew > MaxSkew {
		return nil, fmt.Errorf("invalid skew %s: must be within [0, %s]", cfg.Skew, MaxSkew)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Evaluator{
		now:    cfg.Now,
		skew:   cfg.Skew,
		parser: jwt.NewParser(),
	}, nil
}

// Decode returns the unverified claims of token.
func (e *Evaluator) Decode(token string) (Claims, error) {
	return decode(e.parser, token)
}

// Decode returns the unverified claims of token using a default parser.
func Decode(token string) (Claims, error) {
	return decode(jwt.NewParser(), token)
}

func decode(parser *jwt.Parser, token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if exp == nil {
		return Claims{}, ErrMissingExpiry
	}

	sub, err := mc.GetSubject()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Claims{
		Subject:   sub,
		ExpiresAt: exp.Time,
		Extra:     map[string]any(mc),
	}, nil
}

// Classify decodes token and compares its expiry with the evaluator clock.
// A credential whose expiry equals the evaluation instant is [Expired].
func (e *Evaluator) Classify(token string) Classification {
	claims, err := e.Decode(token)
	if err != nil {
		return Malformed
	}
	return e.classifyClaims(claims)
}

func (e *Evaluator) classifyClaims(claims Claims) Classification {
	deadline := e.now().Add(e.skew)
	if !claims.ExpiresAt.After(deadline) {
		return Expired
	}
	return Valid
}
