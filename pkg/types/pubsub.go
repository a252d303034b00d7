package types

// PubSubMessage is the envelope Pub/Sub delivers inside a CloudEvent.
type PubSubMessage struct {
	Message struct {
		Data       []byte            `json:"data,omitempty"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"message"`
}
