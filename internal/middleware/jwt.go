package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/oelp-api/internal/utils"
)

// AuthTokenLocal holds the raw bearer token so handlers can forward it to
// downstream services.
const AuthTokenLocal = "auth_token"

var (
	errMissingToken  = errors.New("authorization header missing")
	errMalformedAuth = errors.New("invalid authorization header")
	errEmptyToken    = errors.New("invalid token")
)

// identity is the subset of token claims the API relies on.
type identity struct {
	UserID uint
	Role   string
}

// JWTProtected returns a middleware that validates HMAC signed bearer tokens
// and stores the caller identity in user_id and user_role locals. Browsers
// cannot set headers on websocket upgrades, so the token query parameter is
// accepted when the Authorization header is absent.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		who := identityFromClaims(claims)
		if who.UserID != 0 {
			c.Locals("user_id", who.UserID)
		}
		if who.Role != "" {
			c.Locals("user_role", who.Role)
		}
		c.Locals(AuthTokenLocal, raw)

		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authorization == "" {
		if token := strings.TrimSpace(c.Query("token")); token != "" {
			return token, nil
		}
		return "", errMissingToken
	}

	scheme, token, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errMalformedAuth
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

// identityFromClaims accepts the subject under sub, user_id or id, and the
// role either as a string or as the first non-empty entry of a roles list.
func identityFromClaims(claims jwt.MapClaims) identity {
	var who identity
	for _, key := range []string{"sub", "user_id", "id"} {
		if id, err := claimUint(claims[key]); err == nil && id != 0 {
			who.UserID = id
			break
		}
	}
	for _, key := range []string{"role", "roles"} {
		if role := claimRole(claims[key]); role != "" {
			who.Role = role
			break
		}
	}
	return who
}

func claimUint(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 || v != float64(uint(v)) {
			return 0, fmt.Errorf("invalid subject %v", v)
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	case nil:
		return 0, errors.New("missing subject")
	default:
		return 0, fmt.Errorf("unsupported subject type %T", value)
	}
}

func claimRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if role := claimRole(item); role != "" {
				return role
			}
		}
	}
	return ""
}
