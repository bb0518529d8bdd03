package auth

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// TokenScheme prefixes signer-derived tokens.
const TokenScheme = "Cylinder:"

// Signer is the part of a workload signer needed to derive a token.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	PublicKey() []byte
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type tokenClaims struct {
	Issuer   string `json:"iss"`
	IssuedAt int64  `json:"iat,omitempty"`
}

// SignedTokenProvider derives a JWT-style token from the signer's public key
// and a signature over the encoded header and claims. The token is computed by
// the constructor and never refreshed.
type SignedTokenProvider struct {
	token string
}

// NewSignedTokenProvider signs a token for signer. issuedAt is omitted from the
// claims when zero.
func NewSignedTokenProvider(signer Signer, issuedAt time.Time) (*SignedTokenProvider, error) {
	if signer == nil {
		return nil, errors.New("auth: signer is required")
	}

	header, err := jsoniter.Marshal(tokenHeader{Alg: "secp256k1", Typ: "cylinder+jwt"})
	if err != nil {
		return nil, fmt.Errorf("encode token header: %w", err)
	}
	claims := tokenClaims{Issuer: hex.EncodeToString(signer.PublicKey())}
	if !issuedAt.IsZero() {
		claims.IssuedAt = issuedAt.Unix()
	}
	body, err := jsoniter.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("encode token claims: %w", err)
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(header) + "." + enc.EncodeToString(body)
	sig, err := signer.Sign([]byte(signingInput))
	if err != nil {
		return nil, fmt.Errorf("sign auth token: %w", err)
	}
	return &SignedTokenProvider{token: TokenScheme + signingInput + "." + enc.EncodeToString(sig)}, nil
}

func (p *SignedTokenProvider) Token(ctx context.Context) (string, error) {
	return p.token, nil
}

func (p *SignedTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+p.token)
	return nil
}

func (p *SignedTokenProvider) Close() error {
	return nil
}
