// Package trust verifies island proofs.
//
// A proof is an EdDSA-signed JWT. Its subject is the island id, its "trust"
// claim the level the signer vouches for, and its "digest" claim the
// blake2b-256 of the island's canonical public data, so a proof minted for
// one island or one set of inputs cannot be replayed on another.
package trust

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/zenith/hydra/internal/island"
)

var (
	ErrInvalidProof      = errors.New("trust: invalid proof")
	ErrInsufficientTrust = errors.New("trust: insufficient trust level")
)

// Config defines how proofs are verified.
type Config struct {
	Issuer   string // empty accepts any issuer
	Audience string // empty accepts any audience
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Claims carried by a proof.
type Claims struct {
	jwt.RegisteredClaims
	Trust  string `json:"trust"`
	Digest string `json:"digest"`
}

// JWTVerifier implements island.Verifier.
type JWTVerifier struct {
	cfg Config
	log *zap.Logger
}

func NewJWTVerifier(cfg Config, log *zap.Logger) (*JWTVerifier, error) {
	if len(cfg.Key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("trust public key must be %d bytes", ed25519.PublicKeySize)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTVerifier{cfg: cfg, log: log}, nil
}

// VerifyProof checks proof against publicData, which must carry the island
// id and required level under island.PublicIsland and island.PublicTrust.
// A rejected proof returns false with an error saying why.
func (v *JWTVerifier) VerifyProof(ctx context.Context, proof string, publicData map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	proof = strings.TrimSpace(proof)
	if proof == "" {
		return false, fmt.Errorf("%w: proof is required", ErrInvalidProof)
	}
	id, _ := publicData[island.PublicIsland].(string)
	required, _ := publicData[island.PublicTrust].(string)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithSubject(id),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.cfg.Now),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(proof, &claims, func(*jwt.Token) (any, error) {
		return v.cfg.Key, nil
	}, opts...); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}

	want, err := Digest(publicData)
	if err != nil {
		return false, err
	}
	if claims.Digest != want {
		return false, fmt.Errorf("%w: public data digest mismatch", ErrInvalidProof)
	}
	if island.TrustLevel(claims.Trust).Rank() < island.TrustLevel(required).Rank() {
		return false, fmt.Errorf("%w: proof grants %q, island requires %q", ErrInsufficientTrust, claims.Trust, required)
	}

	v.log.Debug("proof verified",
		zap.String("island", id),
		zap.String("trust", claims.Trust),
	)
	return true, nil
}

// Digest returns the hex blake2b-256 of the canonical JSON encoding of
// publicData (object keys sorted).
func Digest(publicData map[string]any) (string, error) {
	raw, err := json.Marshal(publicData)
	if err != nil {
		return "", fmt.Errorf("encode public data: %w", err)
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// ParsePublicKey accepts a raw or padded base64 ed25519 key, or a PEM
// encoded one.
func ParsePublicKey(value string) (ed25519.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty public key")
	}
	if strings.HasPrefix(value, "-----BEGIN") {
		k, err := jwt.ParseEdPublicKeyFromPEM([]byte(value))
		if err != nil {
			return nil, fmt.Errorf("parse pem public key: %w", err)
		}
		pub, ok := k.(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("pem key is not ed25519")
		}
		return pub, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(value)
	}
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
