package stubapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	contextUserKey   = "user"
)

var (
	errTokenNotValid     = echo.NewHTTPError(http.StatusUnauthorized, echo.Map{"detail": "Given token not valid for any token type", "code": "token_not_valid"})
	errNotAuthenticated  = echo.NewHTTPError(http.StatusUnauthorized, echo.Map{"error": "User not authenticated"})
	errInvalidCredential = echo.NewHTTPError(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
)

// claims represents the authorization claims transmitted via the cookie JWTs.
type claims struct {
	jwt.StandardClaims
	TokenType  string `json:"token_type"`
	Generation int    `json:"gen"`
}

func (s *Server) generateToken(usr User, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   strconv.Itoa(usr.ID),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		TokenType:  tokenType,
		Generation: gen,
	})
	ss, err := token.SignedString(s.secretKey)
	return ss, errors.Wrap(err, "signing token")
}

// parseToken returns the user the token of the given type was issued to.
func (s *Server) parseToken(raw, tokenType string) (User, error) {
	clms := new(claims)
	_, err := jwt.ParseWithClaims(raw, clms, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return User{}, errors.Wrap(err, "parsing token")
	}
	if clms.TokenType != tokenType {
		return User{}, errors.Errorf("unexpected token type %q", clms.TokenType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tokenType == tokenTypeAccess && clms.Generation < s.generation {
		return User{}, errors.New("token expired")
	}
	id, _ := strconv.Atoi(clms.Subject)
	usr, ok := s.users[id]
	if !ok {
		return User{}, errors.New("user not found")
	}
	return *usr, nil
}

func (s *Server) setTokenCookie(ctx echo.Context, name, value string, ttl time.Duration) {
	ctx.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) deleteTokenCookie(ctx echo.Context, name string) {
	ctx.SetCookie(&http.Cookie{Name: name, Path: "/", MaxAge: -1})
}

// authMiddleware authenticates requests by their access_token cookie.
func (s *Server) authMiddleware(onMissing *echo.HTTPError) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			cookie, err := ctx.Cookie(AccessTokenCookie)
			if err != nil || cookie.Value == "" {
				return onMissing
			}
			usr, err := s.parseToken(cookie.Value, tokenTypeAccess)
			if err != nil {
				return errTokenNotValid
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

func contextUser(ctx echo.Context) User {
	usr, _ := ctx.Get(contextUserKey).(User)
	return usr
}
