package server

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ActorExtractor resolves the acting principal of a request.
type ActorExtractor func(r *http.Request) string

// HeaderActorExtractor reads the principal from trusted proxy headers.
// Prefers X-User-Principal over X-User-Role, falls back to "system".
func HeaderActorExtractor(r *http.Request) string {
	if principal := r.Header.Get("X-User-Principal"); principal != "" {
		return principal
	}
	if role := r.Header.Get("X-User-Role"); role != "" {
		return role
	}
	return "system"
}

// NewJWTActorExtractor creates an ActorExtractor that reads the principal
// from a JWT Bearer token.
//
// Security model:
//   - If PublicKeyPath is set, tokens are cryptographically verified (RS256)
//   - If PublicKeyPath is empty, tokens are parsed without verification
//     (suitable behind a trusted proxy that already validated them)
//   - Missing or invalid tokens fall back to the header extractor
func NewJWTActorExtractor(cfg JWTConfig, logger *slog.Logger) (ActorExtractor, error) {
	if cfg.PrincipalClaim == "" {
		cfg.PrincipalClaim = "sub"
	}
	if logger == nil {
		logger = slog.Default()
	}

	var publicKey *rsa.PublicKey
	if cfg.PublicKeyPath != "" {
		keyData, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read JWT public key from %s: %w", cfg.PublicKeyPath, err)
		}
		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", cfg.PublicKeyPath)
		}
		parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		rsaKey, ok := parsedKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not RSA (got %T)", parsedKey)
		}
		publicKey = rsaKey
		logger.Info("JWT actor extractor: using RS256 verification", "keyPath", cfg.PublicKeyPath)
	} else {
		logger.Warn("JWT actor extractor: tokens are parsed without verification")
	}

	return func(r *http.Request) string {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return HeaderActorExtractor(r)
		}
		tokenString := strings.TrimPrefix(auth, "Bearer ")

		claims := jwt.MapClaims{}
		var err error
		if publicKey != nil {
			opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}
			_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				return publicKey, nil
			}, opts...)
		} else {
			_, _, err = jwt.NewParser().ParseUnverified(tokenString, claims)
		}
		if err != nil {
			logger.Debug("JWT parse failed, falling back to headers", "error", err)
			return HeaderActorExtractor(r)
		}

		if principal, ok := claims[cfg.PrincipalClaim].(string); ok && principal != "" {
			return principal
		}
		return HeaderActorExtractor(r)
	}, nil
}

// ActorMiddleware resolves the principal once per request and rewrites the
// X-User-Principal header, so downstream handlers share one extraction
// path regardless of auth mode.
func ActorMiddleware(extract ActorExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Set("X-User-Principal", extract(r))
			next.ServeHTTP(w, r)
		})
	}
}
