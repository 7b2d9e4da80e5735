package rediskey

import "fmt"

const (
	SequencePrefix = "seq"
	ReminderPrefix = "reminder:review"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{day}"
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, prefix+":"+day)
}

// BuildReviewReminderKey returns "reminder:review:{applicationID}:{day}"
func BuildReviewReminderKey(applicationID, day string) string {
	return NamespaceKey(ReminderPrefix, applicationID+":"+day)
}
