package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Allamymp/coinApiPortfolio/pkg/logger"
	"github.com/Allamymp/coinApiPortfolio/pkg/metrics"
)

// ErrInvalidCredentials is returned when an email/password pair does not
// match a stored client.
var ErrInvalidCredentials = errors.New("invalid credentials")

type contextKey string

const clientContextKey contextKey = "client"

// Claims represents JWT claims for an authenticated client
type Claims struct {
	ClientID int64  `json:"client_id"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Service handles JWT authentication
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
	expiration time.Duration
}

// Config holds authentication configuration
type Config struct {
	PrivateKeyPath string
	PublicKeyPath  string
	Issuer         string
	Audience       string
	Expiration     time.Duration
}

// NewConfig creates a new auth configuration from environment variables
func NewConfig() *Config {
	return &Config{
		PrivateKeyPath: getEnvOrDefault("JWT_PRIVATE_KEY_PATH", "keys/private.pem"),
		PublicKeyPath:  getEnvOrDefault("JWT_PUBLIC_KEY_PATH", "keys/public.pem"),
		Issuer:         getEnvOrDefault("JWT_ISSUER", "coinapi"),
		Audience:       getEnvOrDefault("JWT_AUDIENCE", "coinapi-clients"),
		Expiration:     getEnvDurationOrDefault("JWT_EXPIRATION", 24*time.Hour),
	}
}

// NewService creates a new authentication service from PEM key files
func NewService(config *Config) (*Service, error) {
	privateKey, err := loadPrivateKey(config.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}

	publicKey, err := loadPublicKey(config.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}

	return &Service{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     config.Issuer,
		audience:   config.Audience,
		expiration: config.Expiration,
	}, nil
}

// EnsureKeyPair generates and saves a key pair when the configured files do
// not exist yet. Meant for first boot in development setups.
func EnsureKeyPair(config *Config) error {
	if _, err := os.Stat(config.PrivateKeyPath); err == nil {
		return nil
	}
	privateKey, publicKey, err := GenerateKeyPair(2048)
	if err != nil {
		return err
	}
	if err := SavePrivateKey(privateKey, config.PrivateKeyPath); err != nil {
		return err
	}
	return SavePublicKey(publicKey, config.PublicKeyPath)
}

// GenerateToken generates a new JWT token for a client
func (s *Service) GenerateToken(clientID int64, email string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.AuthOperationDuration.WithLabelValues("generate_token", "success").Observe(time.Since(start).Seconds())
	}()

	now := time.Now()
	claims := Claims{
		ClientID: clientID,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		metrics.AuthErrors.WithLabelValues("generate_token").Inc()
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	metrics.AuthOperations.WithLabelValues("generate_token", "success").Inc()
	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		metrics.AuthErrors.WithLabelValues("validate_token").Inc()
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		metrics.AuthErrors.WithLabelValues("validate_token").Inc()
		return nil, fmt.Errorf("invalid token")
	}

	if claims.Issuer != s.issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	audienceValid := false
	for _, aud := range claims.Audience {
		if aud == s.audience {
			audienceValid = true
			break
		}
	}
	if !audienceValid {
		return nil, fmt.Errorf("invalid audience")
	}

	metrics.AuthOperations.WithLabelValues("validate_token", "success").Inc()
	return claims, nil
}

// Middleware rejects requests without a valid Bearer token and stores the
// client claims in the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			metrics.AuthMiddlewareDuration.Observe(time.Since(start).Seconds())
		}()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			metrics.AuthMiddlewareErrors.WithLabelValues("missing_header").Inc()
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			metrics.AuthMiddlewareErrors.WithLabelValues("invalid_format").Inc()
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			logger.Log.Warn("token validation failed", zap.Error(err), zap.String("ip", r.RemoteAddr))
			metrics.AuthMiddlewareErrors.WithLabelValues("invalid_token").Inc()
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), clientContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))

		metrics.AuthMiddlewareSuccess.Inc()
	})
}

// ClientFromContext extracts the authenticated client claims from a request
// context.
func ClientFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(clientContextKey).(*Claims)
	return claims, ok
}

// NewActivationToken returns a random URL-safe token for account activation
// mails.
func NewActivationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate activation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a stored hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateKeyPair generates a new RSA key pair for JWT signing
func GenerateKeyPair(bits int) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return privateKey, &privateKey.PublicKey, nil
}

// SavePrivateKey saves a private key to PEM format
func SavePrivateKey(privateKey *rsa.PrivateKey, filename string) error {
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	return writeFile(filename, privateKeyPEM)
}

// SavePublicKey saves a public key to PEM format
func SavePublicKey(publicKey *rsa.PublicKey, filename string) error {
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(publicKey),
	})
	return writeFile(filename, publicKeyPEM)
}

// loadPrivateKey loads a private key from PEM file
func loadPrivateKey(filename string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return privateKey, nil
}

// loadPublicKey loads a public key from PEM file
func loadPublicKey(filename string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	publicKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return publicKey, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func writeFile(filename string, data []byte) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(filename, data, 0600)
}
