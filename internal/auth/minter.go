package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Minter mints RS256 keypair-JWTs bound to a registered public key, the way
// the Service's KEYPAIR_JWT authentication mode expects.
type Minter struct {
	key          *rsa.PrivateKey
	fingerprint  string
	issuerPrefix string // "<ORG_UPPER>-<ACCT_UPPER>.<USER>"
	ttl          time.Duration
}

// NewMinter builds a Minter for the given organization/account/user triple.
// Fails with an error if the PEM cannot be parsed or the fingerprint cannot
// be derived.
func NewMinter(privateKeyPEM []byte, organization, account, user string, ttl time.Duration) (*Minter, error) {
	key, err := ParsePrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	fp, err := Fingerprint(key)
	if err != nil {
		return nil, fmt.Errorf("derive fingerprint: %w", err)
	}

	issuerPrefix := fmt.Sprintf("%s-%s.%s",
		strings.ToUpper(organization), strings.ToUpper(account), user)

	return &Minter{
		key:          key,
		fingerprint:  fp,
		issuerPrefix: issuerPrefix,
		ttl:          ttl,
	}, nil
}

// Mint issues a fresh RS256 JWT. Returns the signed token along with its
// iat/exp (epoch seconds) so the caller (the token cache) can track
// expiry without re-parsing the token.
func (m *Minter) Mint(now time.Time) (token string, iat, exp int64, err error) {
	iat = now.Unix()
	exp = now.Add(m.ttl).Unix()

	claims := jwt.MapClaims{
		"iss": m.issuerPrefix + "." + m.fingerprint,
		"sub": m.issuerPrefix,
		"iat": iat,
		"exp": exp,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := t.SignedString(m.key)
	if err != nil {
		return "", 0, 0, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, iat, exp, nil
}

// Fingerprint returns the public-key fingerprint this minter signs with.
func (m *Minter) Fingerprint() string {
	return m.fingerprint
}
