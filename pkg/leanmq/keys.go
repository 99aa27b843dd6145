package leanmq

// DLQSuffix is appended to a queue name to form its dead letter queue name.
const DLQSuffix = ":dlq"

// RegistryKey returns the set of known queue names: "{prefix}__queues"
func RegistryKey(prefix string) string {
	return prefix + "__queues"
}

// StreamKey returns the stream key for a queue: "{prefix}{name}"
func StreamKey(prefix, name string) string {
	return prefix + name
}

// DLQName returns the dead letter queue name for a queue: "{name}:dlq"
func DLQName(name string) string {
	return name + DLQSuffix
}

// GroupName returns the consumer group name for a queue: "{name}__group"
func GroupName(name string) string {
	return name + "__group"
}

// MetaKey returns the queue metadata hash key: "{prefix}{name}__meta"
func MetaKey(prefix, name string) string {
	return prefix + name + "__meta"
}

// IsDLQName reports whether name carries the dead letter queue suffix.
func IsDLQName(name string) bool {
	return len(name) > len(DLQSuffix) && name[len(name)-len(DLQSuffix):] == DLQSuffix
}
