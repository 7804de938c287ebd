package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-chat/internal/auth"
	"support-chat/internal/mocks"
	"support-chat/internal/models"
	"support-chat/internal/presence"
	"support-chat/internal/repositories"
)

type hubFixture struct {
	hub   *Hub
	msgs  *mocks.MessageRepositoryMock
	convs *mocks.ConversationRepositoryMock
}

func newHubFixture() hubFixture {
	msgs := new(mocks.MessageRepositoryMock)
	convs := new(mocks.ConversationRepositoryMock)
	hub := NewHub(presence.NewRegistry(), NewBuffer(50, time.Hour), msgs, convs)
	return hubFixture{hub: hub, msgs: msgs, convs: convs}
}

func testClient(h *Hub, connID, userID string, role models.Role) *Client {
	return newClient(h, nil, auth.Principal{UserID: userID, Role: role, Name: "name-" + userID}, ConnInfo{ConnID: connID}, Limits{})
}

func dispatch(t *testing.T, h *Hub, c *Client, eventType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	h.Dispatch(context.Background(), c, Envelope{Type: eventType, Payload: raw})
}

func join(t *testing.T, h *Hub, c *Client) {
	t.Helper()
	dispatch(t, h, c, EventUserJoin, JoinPayload{UserID: c.principal.UserID, UserRole: c.principal.Role.String()})
	require.True(t, c.joined)
}

// drain empties the client's outbound queue.
func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case data := <-c.send:
			var env Envelope
			if err := json.Unmarshal(data, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func ofType(envs []Envelope, eventType string) []Envelope {
	var out []Envelope
	for _, env := range envs {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func errorCode(t *testing.T, envs []Envelope) string {
	t.Helper()
	errs := ofType(envs, EventError)
	require.Len(t, errs, 1)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(errs[0].Payload, &p))
	return p.Code
}

func strPtr(s string) *string { return &s }

func TestEventsBeforeJoinAreRejected(t *testing.T) {
	f := newHubFixture()
	c := testClient(f.hub, "c1", "u1", models.RoleUser)

	dispatch(t, f.hub, c, EventMessageSend, SendPayload{MessageID: "m1"})

	assert.Equal(t, CodeNotJoined, errorCode(t, drain(c)))
	f.msgs.AssertNotCalled(t, "GetMessage", mock.Anything, mock.Anything)
}

func TestJoinRejectsMismatchedIdentity(t *testing.T) {
	f := newHubFixture()
	c := testClient(f.hub, "c1", "u1", models.RoleUser)

	dispatch(t, f.hub, c, EventUserJoin, JoinPayload{UserID: "u1", UserRole: "admin"})
	assert.Equal(t, CodeIdentity, errorCode(t, drain(c)))
	assert.False(t, c.joined)

	dispatch(t, f.hub, c, EventUserJoin, JoinPayload{UserID: "someone-else"})
	assert.Equal(t, CodeIdentity, errorCode(t, drain(c)))
	assert.Empty(t, f.hub.Online())
}

func TestJoinTwiceIsRejected(t *testing.T) {
	f := newHubFixture()
	c := testClient(f.hub, "c1", "u1", models.RoleUser)
	join(t, f.hub, c)
	drain(c)

	dispatch(t, f.hub, c, EventUserJoin, JoinPayload{UserID: "u1"})

	assert.Equal(t, CodeAlreadyJoined, errorCode(t, drain(c)))
	assert.Len(t, f.hub.Online(), 1)
}

func TestJoinPlacesConnectionInRooms(t *testing.T) {
	f := newHubFixture()
	user := testClient(f.hub, "c1", "u1", models.RoleUser)
	admin := testClient(f.hub, "c2", "a1", models.RoleAdmin)
	join(t, f.hub, user)
	join(t, f.hub, admin)

	assert.ElementsMatch(t, []Room{UserRoom("u1"), SupportRoom}, f.hub.router.RoomsOf("c1"))
	assert.ElementsMatch(t, []Room{AdminRoom}, f.hub.router.RoomsOf("c2"))

	stats := f.hub.Stats()
	assert.Equal(t, map[string]int{"admin": 1, "user": 1}, stats.Online)
	assert.Equal(t, map[Room]int{UserRoom("u1"): 1, SupportRoom: 1, AdminRoom: 1}, stats.Rooms)
	assert.Empty(t, stats.Buffered)
}

func TestAdminJoinAndLeaveNotifyUsers(t *testing.T) {
	f := newHubFixture()
	u1 := testClient(f.hub, "c1", "u1", models.RoleUser)
	u2 := testClient(f.hub, "c2", "u2", models.RoleUser)
	other := testClient(f.hub, "c3", "a2", models.RoleAdmin)
	join(t, f.hub, u1)
	join(t, f.hub, u2)
	join(t, f.hub, other)
	drain(u1)
	drain(u2)
	drain(other)

	admin := testClient(f.hub, "c4", "a1", models.RoleAdmin)
	join(t, f.hub, admin)
	assert.Len(t, ofType(drain(admin), EventUsersOnline), 1)

	for _, c := range []*Client{u1, u2} {
		envs := drain(c)
		assert.Len(t, ofType(envs, EventAdminOnline), 1)
		snaps := ofType(envs, EventUsersOnline)
		require.Len(t, snaps, 1)
		var list []models.PresenceEntry
		require.NoError(t, json.Unmarshal(snaps[0].Payload, &list))
		assert.Len(t, list, 4)
	}
	assert.Empty(t, ofType(drain(other), EventAdminOnline))

	f.hub.Leave(admin)

	for _, c := range []*Client{u1, u2} {
		envs := drain(c)
		assert.Len(t, ofType(envs, EventAdminOffline), 1)
		assert.Len(t, ofType(envs, EventUsersOnline), 1)
	}
	// admin:offline goes to support-room only; other admins see the snapshot.
	otherEnvs := drain(other)
	assert.Empty(t, ofType(otherEnvs, EventAdminOffline))
	assert.Len(t, ofType(otherEnvs, EventUsersOnline), 1)
	assert.Len(t, f.hub.Online(), 3)
	assert.Empty(t, drain(admin))
}

func TestLeaveWithoutJoinIsNoop(t *testing.T) {
	f := newHubFixture()
	u1 := testClient(f.hub, "c1", "u1", models.RoleUser)
	join(t, f.hub, u1)
	drain(u1)

	f.hub.Leave(testClient(f.hub, "c9", "u9", models.RoleUser))

	assert.Empty(t, drain(u1))
}

func TestRelayAdminMessage(t *testing.T) {
	f := newHubFixture()
	sender := testClient(f.hub, "c1", "a1", models.RoleAdmin)
	otherAdmin := testClient(f.hub, "c2", "a2", models.RoleAdmin)
	recipient := testClient(f.hub, "c3", "u1", models.RoleUser)
	recipientTab := testClient(f.hub, "c4", "u1", models.RoleUser)
	bystander := testClient(f.hub, "c5", "u2", models.RoleUser)
	for _, c := range []*Client{sender, otherAdmin, recipient, recipientTab, bystander} {
		join(t, f.hub, c)
	}
	for _, c := range []*Client{sender, otherAdmin, recipient, recipientTab, bystander} {
		drain(c)
	}

	msg := models.Message{ID: "m1", ConversationID: strPtr("conv1"), SenderRole: models.RoleAdmin, Body: "hello"}
	f.msgs.On("GetMessage", mock.Anything, "m1").Return(msg, nil)
	f.convs.On("GetConversation", mock.Anything, "conv1").Return(models.Conversation{ID: "conv1", UserID: strPtr("u1")}, nil)

	dispatch(t, f.hub, sender, EventMessageSend, SendPayload{Message: MessageRef{ID: "m1"}, SenderRole: "admin", ChatRoomID: "conv1", RecipientID: "u1"})

	senderEnvs := drain(sender)
	assert.Empty(t, ofType(senderEnvs, EventMessageReceived))
	assert.Len(t, ofType(senderEnvs, EventMessageDelivered), 1)

	for _, c := range []*Client{otherAdmin, recipient, recipientTab} {
		got := ofType(drain(c), EventMessageReceived)
		require.Len(t, got, 1, c.id)
		var p ReceivedPayload
		require.NoError(t, json.Unmarshal(got[0].Payload, &p))
		assert.Equal(t, "hello", p.Message.Body)
		assert.Equal(t, "u1", p.RecipientID)
		assert.Equal(t, "conv1", p.ChatRoomID)
	}
	assert.Empty(t, ofType(drain(bystander), EventMessageReceived))
}

func TestRelayUserMessageReachesAdminsOnly(t *testing.T) {
	f := newHubFixture()
	user := testClient(f.hub, "c1", "u1", models.RoleUser)
	otherUser := testClient(f.hub, "c2", "u2", models.RoleUser)
	admin := testClient(f.hub, "c3", "a1", models.RoleAdmin)
	for _, c := range []*Client{user, otherUser, admin} {
		join(t, f.hub, c)
		drain(c)
	}
	drain(user)
	drain(otherUser)
	drain(admin)

	msg := models.Message{ID: "m1", ConversationID: strPtr("conv1"), SenderRole: models.RoleUser, Body: "help"}
	f.msgs.On("GetMessage", mock.Anything, "m1").Return(msg, nil)
	f.convs.On("GetConversation", mock.Anything, "conv1").Return(models.Conversation{ID: "conv1", UserID: strPtr("u1")}, nil)

	dispatch(t, f.hub, user, EventMessageSend, SendPayload{MessageID: "m1"})

	assert.Len(t, ofType(drain(admin), EventMessageReceived), 1)
	assert.Empty(t, ofType(drain(otherUser), EventMessageReceived))
	assert.Len(t, ofType(drain(user), EventMessageDelivered), 1)
}

func TestRelayRequiresStoredMessage(t *testing.T) {
	f := newHubFixture()
	user := testClient(f.hub, "c1", "u1", models.RoleUser)
	admin := testClient(f.hub, "c2", "a1", models.RoleAdmin)
	join(t, f.hub, user)
	join(t, f.hub, admin)
	drain(user)
	drain(admin)

	f.msgs.On("GetMessage", mock.Anything, "missing").Return(nil, repositories.ErrMessageNotFound)

	dispatch(t, f.hub, user, EventMessageSend, SendPayload{MessageID: "missing"})

	assert.Equal(t, CodeMessageNotFound, errorCode(t, drain(user)))
	assert.Empty(t, drain(admin))
}

func TestRelayRejectsForeignConversation(t *testing.T) {
	f := newHubFixture()
	user := testClient(f.hub, "c1", "u1", models.RoleUser)
	admin := testClient(f.hub, "c2", "a1", models.RoleAdmin)
	join(t, f.hub, user)
	join(t, f.hub, admin)
	drain(user)
	drain(admin)

	msg := models.Message{ID: "m1", ConversationID: strPtr("conv2"), SenderRole: models.RoleUser}
	f.msgs.On("GetMessage", mock.Anything, "m1").Return(msg, nil)
	f.convs.On("GetConversation", mock.Anything, "conv2").Return(models.Conversation{ID: "conv2", UserID: strPtr("u2")}, nil)

	dispatch(t, f.hub, user, EventMessageSend, SendPayload{MessageID: "m1"})

	assert.Equal(t, CodeForbidden, errorCode(t, drain(user)))
	assert.Empty(t, drain(admin))
}

func TestRelayRejectsRoleSpoofing(t *testing.T) {
	f := newHubFixture()
	user := testClient(f.hub, "c1", "u1", models.RoleUser)
	join(t, f.hub, user)
	drain(user)

	dispatch(t, f.hub, user, EventMessageSend, SendPayload{MessageID: "m1", SenderRole: "admin"})

	assert.Equal(t, CodeIdentity, errorCode(t, drain(user)))
	f.msgs.AssertNotCalled(t, "GetMessage", mock.Anything, mock.Anything)
}

func TestPublishMessageExcludesSendingUser(t *testing.T) {
	f := newHubFixture()
	adminTab1 := testClient(f.hub, "c1", "a1", models.RoleAdmin)
	adminTab2 := testClient(f.hub, "c2", "a1", models.RoleAdmin)
	otherAdmin := testClient(f.hub, "c3", "a2", models.RoleAdmin)
	for _, c := range []*Client{adminTab1, adminTab2, otherAdmin} {
		join(t, f.hub, c)
	}
	for _, c := range []*Client{adminTab1, adminTab2, otherAdmin} {
		drain(c)
	}

	msg := models.Message{ID: "m1", ConversationID: strPtr("conv1"), SenderRole: models.RoleAdmin}
	n := f.hub.PublishMessage(msg, models.Conversation{ID: "conv1", UserID: strPtr("u1")}, models.RoleAdmin, Exclude{UserID: "a1"})

	assert.Equal(t, 1, n)
	assert.Empty(t, drain(adminTab1))
	assert.Empty(t, drain(adminTab2))
	assert.Len(t, ofType(drain(otherAdmin), EventMessageReceived), 1)
}

func TestJoinReplaysBufferedMessages(t *testing.T) {
	f := newHubFixture()
	msg := models.Message{ID: "m1", ConversationID: strPtr("conv1"), SenderRole: models.RoleAdmin, Body: "while you were away"}
	f.hub.PublishMessage(msg, models.Conversation{ID: "conv1", UserID: strPtr("u1")}, models.RoleAdmin, Exclude{})

	user := testClient(f.hub, "c1", "u1", models.RoleUser)
	join(t, f.hub, user)

	got := ofType(drain(user), EventMessageReceived)
	require.Len(t, got, 1)
	var p ReceivedPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &p))
	assert.Equal(t, "m1", p.Message.ID)

	stranger := testClient(f.hub, "c2", "u2", models.RoleUser)
	join(t, f.hub, stranger)
	assert.Empty(t, ofType(drain(stranger), EventMessageReceived))
}

func TestTypingFollowsDeliveryRule(t *testing.T) {
	f := newHubFixture()
	admin := testClient(f.hub, "c1", "a1", models.RoleAdmin)
	user := testClient(f.hub, "c2", "u1", models.RoleUser)
	other := testClient(f.hub, "c3", "u2", models.RoleUser)
	for _, c := range []*Client{admin, user, other} {
		join(t, f.hub, c)
	}
	for _, c := range []*Client{admin, user, other} {
		drain(c)
	}

	dispatch(t, f.hub, admin, EventTypingStart, TypingPayload{RecipientID: "u1"})
	assert.Len(t, ofType(drain(user), EventUserTyping), 1)
	assert.Empty(t, drain(other))

	dispatch(t, f.hub, user, EventTypingStop, TypingPayload{ChatRoomID: "conv1"})
	assert.Len(t, ofType(drain(admin), EventUserTypingStop), 1)
	assert.Empty(t, drain(other))

	dispatch(t, f.hub, admin, EventTypingStart, TypingPayload{})
	assert.Equal(t, CodeInvalidPayload, errorCode(t, drain(admin)))
}

func TestReadReceiptResolvesRecipientFromConversation(t *testing.T) {
	f := newHubFixture()
	admin := testClient(f.hub, "c1", "a1", models.RoleAdmin)
	user := testClient(f.hub, "c2", "u1", models.RoleUser)
	join(t, f.hub, admin)
	join(t, f.hub, user)
	drain(admin)
	drain(user)

	f.convs.On("GetConversation", mock.Anything, "conv1").Return(models.Conversation{ID: "conv1", UserID: strPtr("u1")}, nil)

	dispatch(t, f.hub, admin, EventMessageRead, ReadPayload{MessageID: "m1", ChatRoomID: "conv1"})

	got := ofType(drain(user), EventReadConfirm)
	require.Len(t, got, 1)
	var p ReadConfirmPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &p))
	assert.Equal(t, "a1", p.ReadBy)
}

func TestAdminStatusRestrictedToAdmins(t *testing.T) {
	f := newHubFixture()
	admin := testClient(f.hub, "c1", "a1", models.RoleAdmin)
	user := testClient(f.hub, "c2", "u1", models.RoleUser)
	join(t, f.hub, admin)
	join(t, f.hub, user)
	drain(admin)
	drain(user)

	dispatch(t, f.hub, user, EventAdminStatus, AdminStatusPayload{Status: "away"})
	assert.Equal(t, CodeForbidden, errorCode(t, drain(user)))

	dispatch(t, f.hub, admin, EventAdminStatus, AdminStatusPayload{Status: "away", Message: "back soon"})
	assert.Len(t, ofType(drain(user), EventAdminStatusUpdate), 1)
}

func TestUnknownEvent(t *testing.T) {
	f := newHubFixture()
	c := testClient(f.hub, "c1", "u1", models.RoleUser)
	join(t, f.hub, c)
	drain(c)

	f.hub.Dispatch(context.Background(), c, Envelope{Type: "nope"})

	assert.Equal(t, CodeUnknownEvent, errorCode(t, drain(c)))
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	c := testClient(nil, "c1", "u1", models.RoleUser)
	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.Send([]byte("x")))
	}
	assert.False(t, c.Send([]byte("overflow")))

	c.closeSend()
	assert.False(t, c.Send([]byte("after close")))
}

func TestReceiveThrottlesInboundEvents(t *testing.T) {
	c := newClient(nil, nil, auth.Principal{UserID: "u1", Role: models.RoleUser}, ConnInfo{ConnID: "c1"}, Limits{EventsPerSecond: 0.001, Burst: 1})

	c.receive([]byte(`{"type":"typing:start","payload":{}}`))
	c.receive([]byte(`{"type":"typing:start","payload":{}}`))
	c.receive([]byte(`not json`))

	assert.Len(t, c.inbound, 1)
	envs := drain(c)
	require.Len(t, envs, 2)
	var first, second ErrorPayload
	require.NoError(t, json.Unmarshal(envs[0].Payload, &first))
	require.NoError(t, json.Unmarshal(envs[1].Payload, &second))
	assert.Equal(t, CodeRateLimited, first.Code)
	assert.Equal(t, CodeInvalidPayload, second.Code)
}

func TestRelayAfterPublishOnlyAcknowledges(t *testing.T) {
	f := newHubFixture()
	user := testClient(f.hub, "c1", "u1", models.RoleUser)
	admin := testClient(f.hub, "c2", "a1", models.RoleAdmin)
	for _, c := range []*Client{user, admin} {
		join(t, f.hub, c)
	}
	drain(user)
	drain(admin)

	msg := models.Message{ID: "m1", ConversationID: strPtr("conv1"), SenderRole: models.RoleUser, UserID: strPtr("u1"), Body: "help"}
	conv := models.Conversation{ID: "conv1", UserID: strPtr("u1")}
	f.msgs.On("GetMessage", mock.Anything, "m1").Return(msg, nil)
	f.convs.On("GetConversation", mock.Anything, "conv1").Return(conv, nil)

	assert.Equal(t, 1, f.hub.PublishMessage(msg, conv, models.RoleUser, Exclude{UserID: "u1"}))
	dispatch(t, f.hub, user, EventMessageSend, SendPayload{MessageID: "m1"})

	assert.Len(t, ofType(drain(admin), EventMessageReceived), 1)
	assert.Len(t, ofType(drain(user), EventMessageDelivered), 1)

	lateAdmin := testClient(f.hub, "c3", "a2", models.RoleAdmin)
	join(t, f.hub, lateAdmin)
	assert.Len(t, ofType(drain(lateAdmin), EventMessageReceived), 1)
}

func TestDeletedMessagesAreNotReplayed(t *testing.T) {
	f := newHubFixture()
	conv := models.Conversation{ID: "conv1", UserID: strPtr("u1")}
	f.hub.PublishMessage(models.Message{ID: "m1", ConversationID: strPtr("conv1"), SenderRole: models.RoleAdmin}, conv, models.RoleAdmin, Exclude{})
	f.hub.PublishMessage(models.Message{ID: "m2", ConversationID: strPtr("conv1"), SenderRole: models.RoleAdmin}, conv, models.RoleAdmin, Exclude{})
	f.hub.PublishMessage(models.Message{ID: "m3", ConversationID: strPtr("conv2"), SenderRole: models.RoleUser, UserID: strPtr("u2")},
		models.Conversation{ID: "conv2", UserID: strPtr("u2")}, models.RoleUser, Exclude{})

	replayed := func(c *Client) int {
		join(t, f.hub, c)
		n := len(ofType(drain(c), EventMessageReceived))
		f.hub.Leave(c)
		return n
	}

	assert.Equal(t, 2, replayed(testClient(f.hub, "c1", "u1", models.RoleUser)))

	assert.Equal(t, 2, f.hub.ForgetMessages("m1"))
	assert.Equal(t, 1, replayed(testClient(f.hub, "c2", "u1", models.RoleUser)))

	f.hub.ForgetIdentity(models.Identity{UserID: "u1"})
	assert.Zero(t, replayed(testClient(f.hub, "c3", "u1", models.RoleUser)))
	assert.Equal(t, 1, replayed(testClient(f.hub, "c4", "a1", models.RoleAdmin)))

	f.hub.ForgetConversations("conv2")
	assert.Zero(t, replayed(testClient(f.hub, "c5", "a1", models.RoleAdmin)))
}
