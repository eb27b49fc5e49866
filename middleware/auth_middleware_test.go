package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func Test_Protected_Exposes_User_Id(t *testing.T) {
	req := require.New(t)
	app := fiber.New()
	app.Get("/me", Protected("s3cret"), func(c *fiber.Ctx) error {
		id, err := CurrentUserID(c)
		if err != nil {
			return err
		}
		return c.SendString(id)
	})

	r := httptest.NewRequest("GET", "/me", nil)
	r.Header.Set("Authorization", "Bearer "+sign(t, "s3cret", jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(time.Hour).Unix()}))
	resp, err := app.Test(r)
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	req.Equal("u1", string(body))
}

func Test_Protected_Rejects_Missing_And_Bad_Tokens(t *testing.T) {
	req := require.New(t)
	app := fiber.New()
	app.Get("/me", Protected("s3cret"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	req.NoError(err)
	req.Equal(fiber.StatusBadRequest, resp.StatusCode)

	r := httptest.NewRequest("GET", "/me", nil)
	r.Header.Set("Authorization", "Bearer "+sign(t, "other", jwt.MapClaims{"user_id": "u1"}))
	resp, err = app.Test(r)
	req.NoError(err)
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)
}

func Test_ParseToken(t *testing.T) {
	req := require.New(t)

	id, err := ParseToken(sign(t, "k", jwt.MapClaims{"user_id": "u9"}), "k")
	req.NoError(err)
	req.Equal("u9", id)

	_, err = ParseToken(sign(t, "k", jwt.MapClaims{"sub": "u9"}), "k")
	req.Error(err)

	_, err = ParseToken(sign(t, "k", jwt.MapClaims{"user_id": "u9", "exp": time.Now().Add(-time.Minute).Unix()}), "k")
	req.Error(err)
}
