package devserver

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

const tokenIssuer = "borrowbook-devserver"

var errInvalidAccessToken = errors.New("invalid access token")

type accessClaims struct {
	Role string `json:"role"`
}

// accessTokens signs the short lived HS256 access tokens.
type accessTokens struct {
	key    []byte
	signer jose.Signer
	ttl    time.Duration
	now    func() time.Time
}

func newAccessTokens(secret []byte, ttl time.Duration, now func() time.Time) (*accessTokens, error) {
	key := sha256.Sum256(secret)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key[:]},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	return &accessTokens{
		key:    key[:],
		signer: signer,
		ttl:    ttl,
		now:    now,
	}, nil
}

func (a *accessTokens) issue(username, role string) (string, error) {
	now := a.now()
	claims := jwt.Claims{
		ID:       uuid.NewString(),
		Issuer:   tokenIssuer,
		Subject:  username,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(a.ttl)),
	}

	token, err := jwt.Signed(a.signer).Claims(claims).Claims(accessClaims{Role: role}).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}

	return token, nil
}

// verify returns the subject and role of a valid, unexpired token.
func (a *accessTokens) verify(raw string) (string, string, error) {
	token, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errInvalidAccessToken, err)
	}

	var (
		std    jwt.Claims
		custom accessClaims
	)
	if err := token.Claims(a.key, &std, &custom); err != nil {
		return "", "", fmt.Errorf("%w: %w", errInvalidAccessToken, err)
	}

	if err := std.ValidateWithLeeway(jwt.Expected{Issuer: tokenIssuer, Time: a.now()}, 0); err != nil {
		return "", "", fmt.Errorf("%w: %w", errInvalidAccessToken, err)
	}

	return std.Subject, custom.Role, nil
}
