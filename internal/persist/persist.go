// Package persist talks to the external persistence service that owns all
// durable entities (chats, messages, tasks, polls, users). This core only
// ever references them by ID.
package persist

import "context"

// Store is the slice of the persistence service this core depends on.
type Store interface {
	// ChatRoomsForUser lists the IDs of every chat thread the user
	// participates in, used to auto-join their rooms after announce.
	ChatRoomsForUser(ctx context.Context, userID string) ([]string, error)
	// SaveMessage persists a chat message and returns the stored document,
	// which is fanned out verbatim as the new_message payload.
	SaveMessage(ctx context.Context, msg NewMessage) (*SavedMessage, error)
	// UserNames resolves display names for a set of user IDs.
	UserNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

type NewMessage struct {
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}

type SavedMessage struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}
