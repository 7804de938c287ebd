package handlers

import (
	"support-chat/internal/models"
	"support-chat/internal/ws"
)

type broadcasterStub struct {
	published      []models.Message
	excluded       []ws.Exclude
	broadcasts     []models.Message
	online         []models.PresenceEntry
	forgotMsgs     []string
	forgotConvs    []string
	forgotIdentity []models.Identity
}

func (b *broadcasterStub) PublishMessage(msg models.Message, _ models.Conversation, _ models.Role, exclude ws.Exclude) int {
	b.published = append(b.published, msg)
	b.excluded = append(b.excluded, exclude)
	return 1
}

func (b *broadcasterStub) PublishBroadcast(msg models.Message, exclude ws.Exclude) int {
	b.broadcasts = append(b.broadcasts, msg)
	b.excluded = append(b.excluded, exclude)
	return 1
}

func (b *broadcasterStub) Online() []models.PresenceEntry {
	return b.online
}

func (b *broadcasterStub) UserOnline(userID string) bool {
	for _, entry := range b.online {
		if entry.UserID == userID {
			return true
		}
	}
	return false
}

func (b *broadcasterStub) ForgetMessages(ids ...string) int {
	b.forgotMsgs = append(b.forgotMsgs, ids...)
	return len(ids)
}

func (b *broadcasterStub) ForgetConversations(ids ...string) int {
	b.forgotConvs = append(b.forgotConvs, ids...)
	return len(ids)
}

func (b *broadcasterStub) ForgetIdentity(identity models.Identity) int {
	b.forgotIdentity = append(b.forgotIdentity, identity)
	return 1
}
