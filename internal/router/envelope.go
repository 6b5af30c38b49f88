package router

import (
	"fmt"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind is the envelope discriminator of the inter-node wire contract.
type Kind uint8

const (
	KindTaskAssign Kind = iota + 1
	KindTaskResult
	KindObjectHandlePublish
	KindCancel
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindTaskAssign:
		return "TaskAssign"
	case KindTaskResult:
		return "TaskResult"
	case KindObjectHandlePublish:
		return "ObjectHandlePublish"
	case KindCancel:
		return "Cancel"
	case KindHeartbeat:
		return "Heartbeat"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Priority orders pending envelopes at the receiver. High and Critical use
// the priority lane.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) urgent() bool { return p >= PriorityHigh }

// defaultPriority is used when the sender does not pick one.
func (k Kind) defaultPriority() Priority {
	switch k {
	case KindCancel:
		return PriorityCritical
	case KindHeartbeat:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Envelope is the unit carried between ranks.
type Envelope struct {
	Kind           Kind     `msgpack:"k"`
	SenderRank     int      `msgpack:"s"`
	SequenceNumber uint64   `msgpack:"n"`
	Priority       Priority `msgpack:"p"`
	Payload        []byte   `msgpack:"b"`
}

// NewEnvelope encodes payload into an envelope of the given kind with the
// kind's default priority.
func NewEnvelope(kind Kind, payload any) (Envelope, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Envelope{Kind: kind, Priority: kind.defaultPriority(), Payload: b}, nil
}

// WithPriority returns a copy of e with priority p.
func (e Envelope) WithPriority(p Priority) Envelope {
	e.Priority = p
	return e
}

// Decode unpacks the payload into v.
func (e Envelope) Decode(v any) error {
	if err := msgpack.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload from rank %d: %w", e.Kind, e.SenderRank, err)
	}
	return nil
}

func encodeFrame(e Envelope) ([]byte, error) {
	return msgpack.Marshal(&e)
}

func decodeFrame(frame []byte) (Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(frame, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	return e, nil
}

// TaskAssign asks a rank to run one module instance.
type TaskAssign struct {
	ExecutionID string            `msgpack:"execution_id"`
	Instance    uint64            `msgpack:"instance"`
	Label       string            `msgpack:"label"`
	Attempt     int               `msgpack:"attempt"`
	ModuleKind  string            `msgpack:"module_kind"`
	Version     int               `msgpack:"version"`
	Params      []byte            `msgpack:"params"`
	Inputs      map[string]uint64 `msgpack:"inputs"`
}

// TaskResult reports the terminal state of an assigned task.
type TaskResult struct {
	ExecutionID    string            `msgpack:"execution_id"`
	Instance       uint64            `msgpack:"instance"`
	Attempt        int               `msgpack:"attempt"`
	Completed      bool              `msgpack:"completed"`
	Outputs        map[string]uint64 `msgpack:"outputs"`
	Error          string            `msgpack:"error"`
	StartedAt      time.Time         `msgpack:"started_at"`
	FinishedAt     time.Time         `msgpack:"finished_at"`
	ObjectsCreated int               `msgpack:"objects_created"`
	BytesProduced  int64             `msgpack:"bytes_produced"`
}

// ObjectHandlePublish announces an object produced on the sender rank.
type ObjectHandlePublish struct {
	ExecutionID string        `msgpack:"execution_id"`
	Instance    uint64        `msgpack:"instance"`
	Port        string        `msgpack:"port"`
	Handle      uint64        `msgpack:"handle"`
	Type        string        `msgpack:"type"`
	Size        int64         `msgpack:"size"`
	Meta        objstore.Meta `msgpack:"meta"`
}

// Cancel stops one instance, or the whole execution when Instance is zero.
type Cancel struct {
	ExecutionID string `msgpack:"execution_id"`
	Instance    uint64 `msgpack:"instance"`
	Reason      string `msgpack:"reason"`
}

// Heartbeat advertises liveness and load.
type Heartbeat struct {
	Rank       int       `msgpack:"rank"`
	QueueDepth int       `msgpack:"queue_depth"`
	SentAt     time.Time `msgpack:"sent_at"`
}
