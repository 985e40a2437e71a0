// Package contracts defines the topics and payloads exchanged over the broker.
package contracts

const (
	// TopicSample carries arbitrary JSON forwarded to the simple task.
	TopicSample = "Sample.Topic"
	// TopicSamplePersist carries SampleMessage payloads that are stored as samples.
	TopicSamplePersist = "Sample.Persist"
)

// TaskSimple is the task name TopicSample records are dispatched to.
const TaskSimple = "simple_task"

// SampleMessage is the payload of TopicSamplePersist.
type SampleMessage struct {
	// Name of the sample to store.
	Name string `json:"name"`
}

// PersistSample is a ready-to-publish TopicSamplePersist message.
type PersistSample struct {
	Sample SampleMessage
	// MessageKey is the opaque record key; callers normally use a fresh ULID.
	MessageKey string
}

func (m PersistSample) Topic() string { return TopicSamplePersist }

func (m PersistSample) Payload() any { return m.Sample }

func (m PersistSample) Key() string { return m.MessageKey }
