package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radu-gajdos/greenthumb/internal/handlers"
	"github.com/radu-gajdos/greenthumb/internal/models"
)

func TestListSessions_RequiresAuth(t *testing.T) {
	handler := handlers.NewSessionHandler(&handlers.MockSessionService{}, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/sessions", nil)

	w := httptest.NewRecorder()
	handler.ListSessions(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestListSessions_ReturnsMetadataOnly(t *testing.T) {
	now := time.Now()
	mock := &handlers.MockSessionService{
		GetActiveSessionsFunc: func(ctx context.Context, userID string) ([]*models.SessionInfo, error) {
			return []*models.SessionInfo{
				{ID: "sess-1", UserAgent: "Firefox", IPAddress: "1.2.3.4", LastActivityAt: now, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
			}, nil
		},
	}

	handler := handlers.NewSessionHandler(mock, nil)
	req := handlers.WithAuthContext(handlers.NewTestRequest(t, "GET", "/auth/sessions", nil), "user-1")

	w := httptest.NewRecorder()
	handler.ListSessions(w, req)

	var resp struct {
		Sessions []models.SessionInfo `json:"sessions"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "Firefox", resp.Sessions[0].UserAgent)
	assert.NotContains(t, w.Body.String(), "token")
}

func TestLogout_Success(t *testing.T) {
	loggedOut := ""
	mock := &handlers.MockSessionService{
		LogoutFunc: func(ctx context.Context, userID, rawRefreshToken, ip, userAgent string) error {
			loggedOut = userID
			return nil
		},
	}

	handler := handlers.NewSessionHandler(mock, nil)
	req := handlers.WithAuthContext(handlers.NewTestRequest(t, "POST", "/auth/logout",
		handlers.LogoutRequest{RefreshToken: "the-token"}), "user-1")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "user-1", loggedOut)
}

func TestLogout_ForeignToken(t *testing.T) {
	mock := &handlers.MockSessionService{
		LogoutFunc: func(ctx context.Context, userID, rawRefreshToken, ip, userAgent string) error {
			return models.ErrInvalidOrExpiredToken
		},
	}

	handler := handlers.NewSessionHandler(mock, nil)
	req := handlers.WithAuthContext(handlers.NewTestRequest(t, "POST", "/auth/logout",
		handlers.LogoutRequest{RefreshToken: "someone-elses"}), "user-1")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestLogoutAll_Success(t *testing.T) {
	loggedOut := ""
	mock := &handlers.MockSessionService{
		LogoutFromAllDevicesFunc: func(ctx context.Context, userID, ip, userAgent string) error {
			loggedOut = userID
			return nil
		},
	}

	handler := handlers.NewSessionHandler(mock, nil)
	req := handlers.WithAuthContext(handlers.NewTestRequest(t, "POST", "/auth/logout-all", nil), "user-1")

	w := httptest.NewRecorder()
	handler.LogoutAll(w, req)

	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "user-1", loggedOut)
}
