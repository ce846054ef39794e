package hub

import (
	"encoding/json"

	"log-viewer-backend/internal/model"
)

type Kind string

// Server to viewer.
const (
	KindInit              Kind = "init"
	KindRecord            Kind = "record"
	KindServiceDiscovered Kind = "service-discovered"
	KindClear             Kind = "clear"
	KindPong              Kind = "pong"
)

// Viewer to server. KindClear is shared by both directions.
const (
	KindSubscribe Kind = "subscribe"
	KindPing      Kind = "ping"
)

// Message is the union of every server message, used by clients to decode.
type Message struct {
	Kind     Kind           `json:"kind"`
	Records  []model.Record `json:"records,omitempty"`
	Services []string       `json:"services,omitempty"`
	Record   *model.Record  `json:"record,omitempty"`
	Service  string         `json:"service,omitempty"`
}

type initMessage struct {
	Kind     Kind           `json:"kind"`
	Records  []model.Record `json:"records"`
	Services []string       `json:"services"`
}

type recordMessage struct {
	Kind   Kind         `json:"kind"`
	Record model.Record `json:"record"`
}

type serviceMessage struct {
	Kind    Kind   `json:"kind"`
	Service string `json:"service"`
}

type bareMessage struct {
	Kind Kind `json:"kind"`
}

func encodeInit(records []model.Record, services []string) ([]byte, error) {
	if records == nil {
		records = []model.Record{}
	}
	if services == nil {
		services = []string{}
	}
	return json.Marshal(initMessage{Kind: KindInit, Records: records, Services: services})
}

func encodeRecord(rec model.Record) ([]byte, error) {
	return json.Marshal(recordMessage{Kind: KindRecord, Record: rec})
}

func encodeService(service string) ([]byte, error) {
	return json.Marshal(serviceMessage{Kind: KindServiceDiscovered, Service: service})
}

var (
	clearPayload = mustEncode(bareMessage{Kind: KindClear})
	pongPayload  = mustEncode(bareMessage{Kind: KindPong})
)

func mustEncode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// ParseControl decodes a viewer message. Anything that is not one of the
// known control kinds reports ok=false and must be ignored by the caller.
func ParseControl(data []byte) (Kind, bool) {
	var msg struct {
		Kind Kind `json:"kind"`
		// Accepted for clients that use "type" as the discriminator.
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", false
	}
	kind := msg.Kind
	if kind == "" {
		kind = msg.Type
	}
	switch kind {
	case KindSubscribe, KindPing, KindClear:
		return kind, true
	}
	return "", false
}
