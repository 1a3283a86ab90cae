package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"campusride/internal/config"
	"campusride/internal/domain"
)

const principalKey = "principal"

// Trusted identity headers set by an authenticating proxy.
const (
	HeaderUserID        = "X-User-ID"
	HeaderUserEmail     = "X-User-Email"
	HeaderEmailVerified = "X-User-Email-Verified"
)

var (
	// ErrNoCredentials means the resolver found nothing it understands.
	ErrNoCredentials = errors.New("no credentials")
	// ErrInvalidToken is returned for a bearer token that does not verify.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// IdentityResolver turns request credentials into a principal. It returns
// ErrNoCredentials when the request carries none of its kind.
type IdentityResolver interface {
	Resolve(r *http.Request) (*domain.Principal, error)
}

// Claims are the bearer token claims issued by the identity provider.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HMAC-signed bearer tokens.
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver creates a resolver for tokens signed with secret. An empty
// issuer accepts any issuer.
func NewJWTResolver(secret, issuer string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer}
}

func (r *JWTResolver) Resolve(req *http.Request) (*domain.Principal, error) {
	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, ErrNoCredentials
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &domain.Principal{
		ID:            claims.Subject,
		Email:         strings.ToLower(claims.Email),
		EmailVerified: claims.EmailVerified,
	}, nil
}

// IssueToken signs a token for principal. Used by tooling and tests.
func (r *JWTResolver) IssueToken(p domain.Principal, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = p.ID
	if claims.Issuer == "" {
		claims.Issuer = r.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:            p.Email,
		EmailVerified:    p.EmailVerified,
		RegisteredClaims: claims,
	})
	return token.SignedString(r.secret)
}

// HeaderResolver reads identity headers from a trusted proxy.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(req *http.Request) (*domain.Principal, error) {
	id := strings.TrimSpace(req.Header.Get(HeaderUserID))
	if id == "" {
		return nil, ErrNoCredentials
	}
	return &domain.Principal{
		ID:            id,
		Email:         strings.ToLower(strings.TrimSpace(req.Header.Get(HeaderUserEmail))),
		EmailVerified: strings.EqualFold(req.Header.Get(HeaderEmailVerified), "true"),
	}, nil
}

// ResolversFromConfig builds the resolver chain enabled by cfg.
func ResolversFromConfig(cfg config.AuthConfig) []IdentityResolver {
	var chain []IdentityResolver
	if cfg.JWTSecret != "" {
		chain = append(chain, NewJWTResolver(cfg.JWTSecret, cfg.JWTIssuer))
	}
	if cfg.TrustedHeaders {
		chain = append(chain, HeaderResolver{})
	}
	return chain
}

// AuthMiddleware returns middleware that resolves the caller with the first
// resolver that recognizes the request and admits only university accounts.
func AuthMiddleware(cfg config.AuthConfig, resolvers ...IdentityResolver) gin.HandlerFunc {
	domainSuffix := "@" + strings.ToLower(strings.TrimPrefix(cfg.UniversityDomain, "@"))

	return func(c *gin.Context) {
		var principal *domain.Principal
		for _, r := range resolvers {
			p, err := r.Resolve(c.Request)
			if errors.Is(err, ErrNoCredentials) {
				continue
			}
			if err != nil {
				abortAuth(c, http.StatusUnauthorized, err.Error())
				return
			}
			principal = p
			break
		}

		if principal == nil {
			abortAuth(c, http.StatusUnauthorized, "authentication required")
			return
		}
		if cfg.UniversityDomain != "" && !strings.HasSuffix(principal.Email, domainSuffix) {
			abortAuth(c, http.StatusForbidden, fmt.Sprintf("a %s email address is required", domainSuffix))
			return
		}
		if cfg.RequireVerifiedMail && !principal.EmailVerified {
			abortAuth(c, http.StatusForbidden, "email address is not verified")
			return
		}

		c.Set(principalKey, *principal)
		c.Next()
	}
}

// AdminOnly admits only the configured operator accounts.
func AdminOnly(adminIDs []string) gin.HandlerFunc {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "authentication required")
			return
		}
		if _, ok := admins[p.ID]; !ok {
			abortAuth(c, http.StatusForbidden, "operator access required")
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal resolved for the request.
func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}

func abortAuth(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{"kind": "authorization", "message": message},
	})
}
