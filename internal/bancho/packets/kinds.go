// Package packets defines the bancho packet-kind table and the typed
// encoders/decoders for every compound payload shape named in the wire
// contract, built on top of internal/wire's primitive codec.
package packets

// Kind identifies a packet's payload shape. One byte on the wire.
type Kind = byte

// Inbound kinds (client to server), dispatched by internal/dispatch.
const (
	KindPing Kind = iota
	KindSendPublicMessage
	KindLogout
	KindRequestStatusUpdate
	KindSendPrivateMessage
	KindChannelJoin
	KindChannelPart
	KindReceiveUpdates
	KindToggleBlockNonFriendDMs
	KindPresenceRequestAll
	KindUserStatsRequest
	KindChangeAction
	KindPresenceRequest
	KindSpectateStart
	KindSpectateStop
	KindSpectateCant
	KindSpectateFrames
)

// Outbound kinds (server to client). Numbered from 64 to keep the two
// tables visually distinct; nothing requires the gap.
const (
	KindLoginReply Kind = iota + 64
	KindNotification
	KindChannelInfo
	KindChannelJoinAck
	KindChannelInfoEnd
	KindBanchoPrivileges
	KindFriendsList
	KindProtocolVersion
	KindSilenceEnd
	KindUserStats
	KindUserPresence
	KindSendMessage
	KindUserLogout
	KindUserDMBlocked
	KindMainMenuIcon
	KindSpectatorJoined
	KindSpectatorLeft
	KindSpectateFramesOut
	KindSpectatorCantSpectate
)

// LoginReplyCode is the i32 payload of a login-reply packet (§6, §9). A
// non-negative value is the logging-in user's own user id (Success); the
// named negative values are drawn from the original source's packet
// constants table.
type LoginReplyCode int32

const (
	LoginInvalidCredentials    LoginReplyCode = -1
	LoginOutdatedClient        LoginReplyCode = -2
	LoginUserBanned            LoginReplyCode = -3
	LoginMultiaccountDetected  LoginReplyCode = -4
	LoginServerError           LoginReplyCode = -5
	LoginCuttingEdgeMultiplay  LoginReplyCode = -6
	LoginAccountPasswordReset  LoginReplyCode = -7
	LoginVerificationRequired  LoginReplyCode = -8
)

// InboundNames maps inbound kinds to their documentation name, used in logs
// and unhandled-packet diagnostics.
var InboundNames = map[Kind]string{
	KindPing:                    "ping",
	KindSendPublicMessage:       "send-public-message",
	KindLogout:                  "user-logout",
	KindRequestStatusUpdate:     "request-status-update",
	KindSendPrivateMessage:      "send-private-message",
	KindChannelJoin:             "channel-join",
	KindChannelPart:             "channel-part",
	KindReceiveUpdates:          "receive-updates",
	KindToggleBlockNonFriendDMs: "toggle-block-non-friend-dms",
	KindPresenceRequestAll:      "presence-request-all",
	KindUserStatsRequest:        "user-stats-request",
	KindChangeAction:            "change-action",
	KindPresenceRequest:         "presence-request",
	KindSpectateStart:           "spectate-start",
	KindSpectateStop:            "spectate-stop",
	KindSpectateCant:            "spectate-cant",
	KindSpectateFrames:          "spectate-frames",
}
