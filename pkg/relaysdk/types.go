package relaysdk

import (
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/saathi/pkg/jwtx"
)

// ============================================================================
// REST Types
// ============================================================================

// ErrorResponse is the body of every non-2xx REST response.
type ErrorResponse struct {
	// Error is a machine readable code (e.g., "invalid_request", "forbidden")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// RegisterRequest is the body of POST /v1/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`

	// Role is one of Admin, StatePartner, DistrictPartner, Member, Agent.
	// The first user ever registered becomes Admin whatever is asked for.
	Role string `json:"role"`

	// InvitationCode is required for everyone except the first user.
	InvitationCode string `json:"invitation_code,omitempty"`

	// State is required for StatePartners; District for DistrictPartners.
	// Lower tiers inherit both from their referrer.
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}

// User is a user record as the API exposes it.
type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email,omitempty"`
	Role              string     `json:"role"`
	SuperAdmin        bool       `json:"super_admin,omitempty"`
	State             string     `json:"state,omitempty"`
	District          string     `json:"district,omitempty"`
	ParentID          string     `json:"parent_id,omitempty"`
	StatePartnerID    string     `json:"state_partner_id,omitempty"`
	DistrictPartnerID string     `json:"district_partner_id,omitempty"`
	ReferredBy        string     `json:"referred_by,omitempty"`
	InvitationCode    string     `json:"invitation_code,omitempty"`
	ConnectedServices []string   `json:"connected_services"`
	IsOnline          bool       `json:"is_online"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
}

// UsersResponse wraps a list of users.
type UsersResponse struct {
	Users []User `json:"users"`
}

// Message is a persisted chat message.
type Message struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	ReceiverID  string     `json:"receiver_id"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type"`
	ServiceID   string     `json:"service_id,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// MessagesResponse wraps a list of messages, oldest first.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// InvitationCheckResponse answers GET /v1/invitations/{code}/valid.
type InvitationCheckResponse struct {
	Code  string `json:"code"`
	Role  string `json:"role"`
	Valid bool   `json:"valid"`
}

// SessionsResponse lists the users with a live session.
type SessionsResponse struct {
	Count   int      `json:"count"`
	UserIDs []string `json:"user_ids"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the individual readiness checks.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}

// JWKSResponse is the JSON Web Key Set served at /.well-known/jwks.json.
type JWKSResponse = jwtx.JWKS

// ============================================================================
// Websocket Frames
// ============================================================================

// Frame is the envelope of every websocket message in either direction.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Client to server frame types.
const (
	FrameSendMessage      = "SendMessage"
	FrameSendCallOffer    = "SendCallOffer"
	FrameSendCallAnswer   = "SendCallAnswer"
	FrameSendCallReject   = "SendCallReject"
	FrameSendIceCandidate = "SendIceCandidate"
	FrameJoinGroup        = "JoinGroup"
	FrameLeaveGroup       = "LeaveGroup"
	FrameMarkAsRead       = "MarkAsRead"
)

// Server to client frame types.
const (
	FrameReceiveMessage      = "ReceiveMessage"
	FrameMessageSent         = "MessageSent"
	FrameReceiveCallOffer    = "ReceiveCallOffer"
	FrameReceiveCallAnswer   = "ReceiveCallAnswer"
	FrameReceiveCallReject   = "ReceiveCallReject"
	FrameReceiveIceCandidate = "ReceiveIceCandidate"
	FrameAck                 = "Ack"
	FrameError               = "Error"
)

// Websocket error codes.
const (
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeInternal          = "INTERNAL"
)

type SendMessagePayload struct {
	ReceiverID  string `json:"receiver_id"`
	Content     string `json:"content"`
	ServiceID   string `json:"service_id,omitempty"`
	MessageType string `json:"message_type,omitempty"`
}

// CallSignalPayload carries an SDP blob or ICE descriptor to a peer.
// ServiceID is only needed between Members and Agents, who may call each
// other inside a service they both belong to.
type CallSignalPayload struct {
	To        string          `json:"to"`
	ServiceID string          `json:"service_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// GroupPayload is accepted for compatibility and acknowledged without effect.
type GroupPayload struct {
	UserID string `json:"user_id"`
}

type MarkAsReadPayload struct {
	MessageID string `json:"message_id"`
}

// MessagePayload carries a message in ReceiveMessage and MessageSent frames.
type MessagePayload struct {
	Message Message `json:"message"`
}

// IncomingSignalPayload is what the callee receives for any call frame.
type IncomingSignalPayload struct {
	From      string          `json:"from"`
	ServiceID string          `json:"service_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// AckPayload confirms a frame that has no richer reply. Delivered is set for
// call signals: false means the peer had no live session and the signal was
// dropped.
type AckPayload struct {
	Delivered *bool    `json:"delivered,omitempty"`
	Message   *Message `json:"message,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
