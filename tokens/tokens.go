// Package tokens issues short-lived signed links for downloading job
// results.
package tokens

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
)

var ErrInvalidToken = errors.New("invalid download token")

// LoadSecretKey reads the HS256 signing key at path, generating and saving
// a new random key when the file does not exist.
func LoadSecretKey(fs afero.Fs, path string) ([]byte, error) {
	key, err := afero.ReadFile(fs, path)
	if err != nil {
		// If the file doesn't exist, generate a new key
		if os.IsNotExist(err) {
			b := make([]byte, 32)
			if _, err := rand.Read(b); err != nil {
				return nil, fmt.Errorf("failed to generate download secret key: %w", err)
			}
			if err := afero.WriteFile(fs, path, b, 0600); err != nil {
				return nil, fmt.Errorf("failed to write download secret key: %w", err)
			}
			return b, nil
		}
		return nil, fmt.Errorf("failed to read download secret key: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("download secret key %s is empty", path)
	}
	return key, nil
}

// DownloadClaims authorises one download of a job output.
type DownloadClaims struct {
	JobID    string `json:"jid"`
	Format   string `json:"fmt"`
	Expiry   int64  `json:"exp"`
	IssuedAt int64  `json:"iat"`
}

func (c DownloadClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Expiry, 0)), nil
}

func (c DownloadClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c DownloadClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c DownloadClaims) GetIssuer() (string, error) {
	return "", nil
}

func (c DownloadClaims) GetSubject() (string, error) {
	return c.JobID, nil
}

func (c DownloadClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// Issuer signs and verifies download tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl, now: time.Now}
}

// Issue returns a token for downloading format of jobID and its expiry.
func (i *Issuer) Issue(jobID, format string) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := DownloadClaims{
		JobID:    jobID,
		Format:   format,
		Expiry:   expires.Unix(),
		IssuedAt: now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign download token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the signature and expiry of token and returns its claims.
func (i *Issuer) Verify(token string) (*DownloadClaims, error) {
	claims := &DownloadClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.JobID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
