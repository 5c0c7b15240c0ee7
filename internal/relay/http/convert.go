package http

import (
	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/pkg/relaysdk"
)

// toProfile exposes every field of u. Only the user themselves and the
// managers above them get this view.
func toProfile(u domain.User) relaysdk.User {
	out := toPublicUser(u)
	out.Email = u.Email
	out.ReferredBy = u.ReferredBy
	out.InvitationCode = u.InvitationCode
	out.LastLogin = u.LastLogin
	return out
}

// toPublicUser omits contact details and the invitation code.
func toPublicUser(u domain.User) relaysdk.User {
	services := u.ConnectedServices
	if services == nil {
		services = []string{}
	}
	return relaysdk.User{
		ID:                u.ID,
		Username:          u.Username,
		Role:              u.Role.String(),
		SuperAdmin:        u.SuperAdmin,
		State:             u.State,
		District:          u.District,
		ParentID:          u.ParentID,
		StatePartnerID:    u.StatePartnerID,
		DistrictPartnerID: u.DistrictPartnerID,
		ConnectedServices: services,
		IsOnline:          u.IsOnline,
		IsActive:          u.IsActive,
		CreatedAt:         u.CreatedAt,
	}
}

func toUsers(us []domain.User, view func(domain.User) relaysdk.User) relaysdk.UsersResponse {
	out := relaysdk.UsersResponse{Users: make([]relaysdk.User, 0, len(us))}
	for _, u := range us {
		out.Users = append(out.Users, view(u))
	}
	return out
}

func toMessage(m domain.Message) relaysdk.Message {
	return relaysdk.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		MessageType: string(m.Type),
		ServiceID:   m.ServiceID,
		Timestamp:   m.Timestamp,
		IsRead:      m.IsRead,
		ReadAt:      m.ReadAt,
	}
}

func toMessages(ms []domain.Message) relaysdk.MessagesResponse {
	out := relaysdk.MessagesResponse{Messages: make([]relaysdk.Message, 0, len(ms))}
	for _, m := range ms {
		out.Messages = append(out.Messages, toMessage(m))
	}
	return out
}
