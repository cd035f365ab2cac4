package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/gmsas95/devocr/internal/errors"
	"github.com/gmsas95/devocr/internal/export"
)

// DownloadClaims identify one exported file for a single download.
type DownloadClaims struct {
	SessionID string `json:"sid"`
	ExportID  string `json:"eid"`
	Filename  string `json:"file"`
	Format    string `json:"fmt"`
	jwt.RegisteredClaims
}

// TokenIssuer signs short-lived download tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for rec and its expiry.
func (t *TokenIssuer) Issue(sessionID string, rec *export.Record) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := DownloadClaims{
		SessionID: sessionID,
		ExportID:  rec.ID,
		Filename:  rec.Filename,
		Format:    string(rec.Format),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download token: %w", err)
	}
	return signed, exp, nil
}

// Parse validates a token and returns its claims.
func (t *TokenIssuer) Parse(token string) (*DownloadClaims, error) {
	var claims DownloadClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnauthorized.Code, "invalid or expired download link")
	}
	return &claims, nil
}
