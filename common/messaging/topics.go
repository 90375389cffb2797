package messaging

import "strings"

// Domain event topics. Pattern: {aggregate}.{qualifier}.{action}.
const (
	TopicWebhookInboundReceived       = "webhook.inbound.received"
	TopicCustomerCreated              = "customer.created"
	TopicConversationOpened           = "conversation.opened"
	TopicConversationParticipantAdded = "conversation.participant.added"
	TopicMessageInboundCreated        = "message.inbound.created"
	TopicMediaUploaded                = "media.uploaded"
)

// Internal work subjects, never exposed through the event bus.
const (
	SubjectDispatchJobs = "dispatch.jobs.outbound"
	SubjectDispatchDLQ  = "dispatch.dlq"
)

// Topics lists every domain topic in the catalogue.
func Topics() []string {
	return []string{
		TopicWebhookInboundReceived,
		TopicCustomerCreated,
		TopicConversationOpened,
		TopicConversationParticipantAdded,
		TopicMessageInboundCreated,
		TopicMediaUploaded,
	}
}

// IsKnownTopic reports whether topic is in the catalogue.
func IsKnownTopic(topic string) bool {
	for _, t := range Topics() {
		if t == topic {
			return true
		}
	}
	return false
}

// DispatchDLQSubject returns the dead-letter subject for a failure reason,
// e.g. dispatch.dlq.attempts_exhausted.
func DispatchDLQSubject(reason string) string {
	reason = strings.TrimSpace(strings.ToLower(reason))
	if reason == "" {
		reason = "unknown"
	}
	return SubjectDispatchDLQ + "." + strings.NewReplacer(" ", "_", ".", "_").Replace(reason)
}
