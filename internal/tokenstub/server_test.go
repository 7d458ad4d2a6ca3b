package tokenstub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatgate/internal/infrastructure/tokenclient"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newStub() *Server {
	s := New(Config{Secret: "stub-secret", Issuer: "chatgate-tokenstub", TokenTTL: time.Hour}, nil)
	s.now = func() time.Time { return time.Now().Truncate(time.Second) }
	return s
}

func post(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/create-token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateToken(t *testing.T) {
	s := newStub()
	w := post(s.Router(), `{"identity":"Alice"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("stub-secret"), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, "Alice", claims.Subject)
	assert.Equal(t, "Alice", claims.Grants.Identity)
	assert.Equal(t, "chatgate-tokenstub", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestCreateToken_Rejects(t *testing.T) {
	router := newStub().Router()

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"identity":`},
		{"missing identity", `{}`},
		{"blank identity", `{"identity":"   "}`},
		{"too long", `{"identity":"` + strings.Repeat("a", maxIdentityLength+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(router, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_INPUT")
		})
	}
}

func TestPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/create-token", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	newStub().Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
}

func TestTokenClientAgainstStub(t *testing.T) {
	srv := httptest.NewServer(newStub().Router())
	defer srv.Close()

	client, err := tokenclient.New(tokenclient.Config{
		Endpoint:         srv.URL + "/create-token",
		Timeout:          time.Second,
		BreakerThreshold: 3,
		BreakerTimeout:   time.Second,
	}, nil, nil)
	require.NoError(t, err)

	token, err := client.RequestToken(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", token.Identity)
	assert.NotEmpty(t, token.Value)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)
}
