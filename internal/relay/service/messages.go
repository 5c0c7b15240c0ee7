package service

import (
	"context"
	"errors"
	"strings"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
	"github.com/aussiebroadwan/saathi/pkg/idx"
)

type MessageService struct {
	Store store.Store
}

// Conversation returns the messages between userID and otherID, oldest
// first. An empty serviceID spans every service. An unknown otherID is a
// denial, like it is for sends.
func (s *MessageService) Conversation(ctx context.Context, userID, otherID, serviceID string) ([]domain.Message, error) {
	if strings.TrimSpace(otherID) == "" {
		return nil, ErrInvalidArgument
	}
	if _, err := idx.Parse(otherID); err != nil {
		return nil, ErrAuthorizationDenied
	}
	if _, err := s.Store.Users().GetUserByID(ctx, otherID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAuthorizationDenied
		}
		return nil, err
	}
	return s.Store.Messages().Conversation(ctx, userID, otherID, strings.TrimSpace(serviceID))
}

// Unread returns the messages waiting for userID, oldest first.
func (s *MessageService) Unread(ctx context.Context, userID string) ([]domain.Message, error) {
	return s.Store.Messages().Unread(ctx, userID)
}
