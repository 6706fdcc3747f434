package audit

import (
	"context"

	"github.com/SwastikKasera/askleaf-livechat-server/pkg/log"
)

// Audit actions for the relay.
const (
	ActionCustomerJoin = "relay.customer_join"
	ActionAgentJoin    = "relay.agent_join"
	ActionSendMessage  = "relay.send_message"
	ActionDisconnect   = "relay.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, connectionID, conversationID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldConnectionID, connectionID).
		Str(log.FieldConversationID, conversationID).
		Msg(msg)
}

// LogWithDetail emits an audit log with an extra detail field.
func LogWithDetail(ctx context.Context, action, connectionID, conversationID, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldConnectionID, connectionID).
		Str(log.FieldConversationID, conversationID).
		Str(FieldDetail, detail).
		Msg(msg)
}
