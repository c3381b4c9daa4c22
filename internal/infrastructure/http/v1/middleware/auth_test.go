package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"stockval/internal/core/apperror"
	appctx "stockval/internal/core/context"
)

type stubValidator struct {
	token string
	user  *appctx.UserContext
}

func (v *stubValidator) ValidateToken(tokenString string) (*appctx.UserContext, error) {
	if tokenString != v.token {
		return nil, apperror.NewUnauthorized("invalid token")
	}
	return v.user, nil
}

type stubKeyVerifier struct {
	keyID  string
	secret string
	user   *appctx.UserContext
}

func (v *stubKeyVerifier) Verify(_ context.Context, keyID, secret string) (*appctx.UserContext, error) {
	if keyID != v.keyID || secret != v.secret {
		return nil, apperror.NewUnauthorized("invalid api key")
	}
	return v.user, nil
}

func authTestRouter(keys APIKeyVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator := &stubValidator{
		token: "good-token",
		user:  &appctx.UserContext{UserID: "human-1"},
	}

	router := gin.New()
	router.Use(ErrorHandler())
	router.Use(Auth(validator, keys))
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, appctx.GetUserID(c.Request.Context()))
	})
	return router
}

func TestAuthSchemes(t *testing.T) {
	keys := &stubKeyVerifier{
		keyID:  "worker-1",
		secret: "s3cret",
		user:   &appctx.UserContext{UserID: "machine-1"},
	}

	tests := []struct {
		name       string
		header     string
		keys       APIKeyVerifier
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bearer token",
			header:     "Bearer good-token",
			keys:       keys,
			wantStatus: http.StatusOK,
			wantBody:   "human-1",
		},
		{
			name:       "api key",
			header:     "ApiKey worker-1:s3cret",
			keys:       keys,
			wantStatus: http.StatusOK,
			wantBody:   "machine-1",
		},
		{
			name:       "bad bearer token",
			header:     "Bearer forged",
			keys:       keys,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bad api key secret",
			header:     "ApiKey worker-1:wrong",
			keys:       keys,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "api key without separator",
			header:     "ApiKey worker-1",
			keys:       keys,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "api key scheme disabled",
			header:     "ApiKey worker-1:s3cret",
			keys:       nil,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing header",
			header:     "",
			keys:       keys,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unsupported scheme",
			header:     "Basic dXNlcjpwYXNz",
			keys:       keys,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := authTestRouter(tt.keys)

			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}
