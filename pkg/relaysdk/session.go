package relaysdk

import (
	"context"
	"net/http"
	"net/url"
)

// Session is an authenticated client. Access tokens are not refreshed; log
// in again once the token expires.
type Session struct {
	client *Client
	token  string
	user   User
}

// NewSession wraps an access token obtained elsewhere.
func (c *Client) NewSession(accessToken string, user User) *Session {
	return &Session{client: c, token: accessToken, user: user}
}

func (s *Session) AccessToken() string { return s.token }

// User is the account the session was opened for, as of login.
func (s *Session) User() User { return s.user }

func (s *Session) Profile(ctx context.Context) (*User, error) {
	var u User
	if err := s.get(ctx, "/v1/auth/profile", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Conversation returns the messages exchanged with otherID, oldest first.
// An empty serviceID spans every service.
func (s *Session) Conversation(ctx context.Context, otherID, serviceID string) ([]Message, error) {
	path := "/v1/chat/conversation/" + url.PathEscape(otherID)
	if serviceID != "" {
		path += "?service_id=" + url.QueryEscape(serviceID)
	}

	var out MessagesResponse
	if err := s.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (s *Session) Unread(ctx context.Context) ([]Message, error) {
	var out MessagesResponse
	if err := s.get(ctx, "/v1/chat/unread", &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (s *Session) MarkRead(ctx context.Context, messageID string) (*Message, error) {
	resp, err := s.client.do(ctx, http.MethodPost, "/v1/chat/mark-read/"+url.PathEscape(messageID), s.token, nil)
	if err != nil {
		return nil, err
	}

	var m Message
	if err := decodeJSON(resp, &m, http.StatusOK); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Session) AvailableUsers(ctx context.Context) ([]User, error) {
	return s.users(ctx, "/v1/chat/available-users")
}

func (s *Session) HierarchyUsers(ctx context.Context) ([]User, error) {
	return s.users(ctx, "/v1/hierarchy/users")
}

func (s *Session) DirectReferrals(ctx context.Context) ([]User, error) {
	return s.users(ctx, "/v1/hierarchy/referrals")
}

// JoinService adds the session's user to serviceID. Joining twice is fine.
func (s *Session) JoinService(ctx context.Context, serviceID string) error {
	return s.editService(ctx, http.MethodPost, serviceID)
}

// LeaveService removes the session's user from serviceID.
func (s *Session) LeaveService(ctx context.Context, serviceID string) error {
	return s.editService(ctx, http.MethodDelete, serviceID)
}

// Sessions lists the users with a live session. Admins only.
func (s *Session) Sessions(ctx context.Context) (*SessionsResponse, error) {
	var out SessionsResponse
	if err := s.get(ctx, "/v1/admin/sessions", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) editService(ctx context.Context, method, serviceID string) error {
	resp, err := s.client.do(ctx, method, "/v1/services/"+url.PathEscape(serviceID)+"/members", s.token, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (s *Session) users(ctx context.Context, path string) ([]User, error) {
	var out UsersResponse
	if err := s.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (s *Session) get(ctx context.Context, path string, target any) error {
	resp, err := s.client.do(ctx, http.MethodGet, path, s.token, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, http.StatusOK)
}
