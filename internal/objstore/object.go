package objstore

// Object is an unpublished draft: a type tag, metadata and a payload. Once
// handed to Arena.Publish it must not be modified by the caller.
type Object struct {
	Type    DataType
	Meta    Meta
	Payload Payload
}

// New creates a draft object.
func New(t DataType, p Payload, meta Meta) *Object {
	return &Object{Type: t, Meta: meta, Payload: p}
}

// Derive creates the next generation of o carrying payload p. Callers that
// want to edit the current data start from o.Payload.Clone().
func (o *Object) Derive(p Payload) *Object {
	meta := o.Meta
	meta.Generation++
	return &Object{Type: o.Type, Meta: meta, Payload: p}
}

func (o *Object) size() int64 {
	if o.Payload == nil {
		return 0
	}
	return o.Payload.SizeBytes()
}
