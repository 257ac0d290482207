package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockTokenParser struct {
	mock.Mock
}

func (m *MockTokenParser) ParseToken(ctx context.Context, token string) (*services.Claims, error) {
	args := m.Called(ctx, token)
	if claims := args.Get(0); claims != nil {
		return claims.(*services.Claims), args.Error(1)
	}
	return nil, args.Error(1)
}

func userClaims(subject string, role services.Role) *services.Claims {
	c := &services.Claims{Role: role}
	c.Subject = subject
	return c
}

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User", UserIDFromContext(r.Context()))
		w.Header().Set("X-Role", string(RoleFromContext(r.Context())))
		w.Header().Set("X-Token", TokenFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuth(t *testing.T) {
	parser := new(MockTokenParser)
	parser.On("ParseToken", mock.Anything, "good").Return(userClaims("user-1", services.RoleUser), nil)
	parser.On("ParseToken", mock.Anything, "revoked").Return(nil, services.ErrInvalidToken)
	parser.On("ParseToken", mock.Anything, "flaky").Return(nil, errors.Join(database.ErrStoreUnavailable, errors.New("redis down")))

	handler := Auth(parser)(echoCaller())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"extra parts", "Bearer good extra", http.StatusUnauthorized},
		{"revoked token", "Bearer revoked", http.StatusUnauthorized},
		{"blacklist unavailable", "Bearer flaky", http.StatusServiceUnavailable},
		{"valid token", "Bearer good", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "user-1", rec.Header().Get("X-User"))
				assert.Equal(t, "user", rec.Header().Get("X-Role"))
				assert.Equal(t, "good", rec.Header().Get("X-Token"))
			}
		})
	}
	parser.AssertExpectations(t)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(services.RoleAdmin, services.RoleService)(echoCaller())

	tests := []struct {
		name string
		role services.Role
		want int
	}{
		{"admin", services.RoleAdmin, http.StatusNoContent},
		{"service", services.RoleService, http.StatusNoContent},
		{"user", services.RoleUser, http.StatusForbidden},
		{"anonymous", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/salary/run", nil)
			if tt.role != "" {
				req = req.WithContext(WithCaller(req.Context(), "caller", tt.role))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestContextHelpersOutsideAuth(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, UserIDFromContext(ctx))
	assert.Empty(t, RoleFromContext(ctx))
	assert.Empty(t, TokenFromContext(ctx))
}
