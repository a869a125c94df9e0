package commandfeed

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
	"github.com/rmacdonaldsmith/topichub-go/pkg/hub"
)

// Frame field names. Payloads travel base64 encoded since Struct strings
// must be valid UTF-8.
const (
	fieldTopic        = "topic"
	fieldPattern      = "pattern"
	fieldSubscriberID = "subscriber_id"
	fieldBuffer       = "buffer"
	fieldPayload      = "payload"
	fieldHeaders      = "headers"
	fieldSequence     = "sequence"
	fieldMatched      = "matched"
	fieldEnqueued     = "enqueued"
	fieldDropped      = "dropped"
	fieldTimestamp    = "timestamp"
	fieldPublishedAt  = "published_at"
)

// ErrMalformedFrame is returned when a frame lacks a field or has the wrong type
var ErrMalformedFrame = errors.New("malformed frame")

func publishFrame(topic string, payload []byte) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldTopic:   topic,
		fieldPayload: base64.StdEncoding.EncodeToString(payload),
	})
}

func subscriptionFrame(subscriberID, pattern string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldSubscriberID: subscriberID,
		fieldPattern:      pattern,
	})
}

func deliveriesFrame(subscriberID string, buffer int) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldSubscriberID: subscriberID,
		fieldBuffer:       buffer,
	})
}

func resultFrame(res hub.PublishResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldSequence:  res.Sequence,
		fieldMatched:   res.Matched,
		fieldEnqueued:  res.Enqueued,
		fieldDropped:   res.Dropped,
		fieldTimestamp: res.Timestamp.Format(time.RFC3339Nano),
	})
}

func messageFrame(msg *delivery.Message) (*structpb.Struct, error) {
	headers := make(map[string]any, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	return structpb.NewStruct(map[string]any{
		fieldSequence:    msg.Sequence,
		fieldTopic:       msg.Topic,
		fieldPayload:     base64.StdEncoding.EncodeToString(msg.Payload),
		fieldPublishedAt: msg.PublishedAt.Format(time.RFC3339Nano),
		fieldHeaders:     headers,
	})
}

// decodeCommand turns a unary request frame into a hub command.
func decodeCommand(kind hub.CommandKind, s *structpb.Struct) (hub.Command, error) {
	cmd := hub.Command{Kind: kind}
	var err error
	switch kind {
	case hub.CommandPublish:
		if cmd.Topic, err = stringField(s, fieldTopic); err != nil {
			return hub.Command{}, err
		}
		if cmd.Payload, err = bytesField(s, fieldPayload); err != nil {
			return hub.Command{}, err
		}
	default:
		if cmd.SubscriberID, err = stringField(s, fieldSubscriberID); err != nil {
			return hub.Command{}, err
		}
		if cmd.Topic, err = stringField(s, fieldPattern); err != nil {
			return hub.Command{}, err
		}
	}
	return cmd, nil
}

func decodeResult(s *structpb.Struct) (hub.PublishResult, error) {
	ts, err := timeField(s, fieldTimestamp)
	if err != nil {
		return hub.PublishResult{}, err
	}
	return hub.PublishResult{
		Sequence:  uint64(numberField(s, fieldSequence)),
		Matched:   int(numberField(s, fieldMatched)),
		Enqueued:  int(numberField(s, fieldEnqueued)),
		Dropped:   int(numberField(s, fieldDropped)),
		Timestamp: ts,
	}, nil
}

func decodeMessage(s *structpb.Struct) (*delivery.Message, error) {
	topic, err := stringField(s, fieldTopic)
	if err != nil {
		return nil, err
	}
	payload, err := bytesField(s, fieldPayload)
	if err != nil {
		return nil, err
	}
	publishedAt, err := timeField(s, fieldPublishedAt)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string)
	if v, ok := s.GetFields()[fieldHeaders]; ok {
		for k, hv := range v.GetStructValue().GetFields() {
			headers[k] = hv.GetStringValue()
		}
	}

	return &delivery.Message{
		Sequence:    uint64(numberField(s, fieldSequence)),
		Topic:       topic,
		Payload:     payload,
		PublishedAt: publishedAt,
		Headers:     headers,
	}, nil
}

func stringField(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedFrame, name)
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformedFrame, name)
	}
	return str.StringValue, nil
}

// bytesField decodes a base64 payload. A missing field is an empty payload.
func bytesField(s *structpb.Struct, name string) ([]byte, error) {
	if _, ok := s.GetFields()[name]; !ok {
		return nil, nil
	}
	str, err := stringField(s, name)
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, name, err)
	}
	return b, nil
}

func numberField(s *structpb.Struct, name string) float64 {
	return s.GetFields()[name].GetNumberValue()
}

func timeField(s *structpb.Struct, name string) (time.Time, error) {
	str, err := stringField(s, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, name, err)
	}
	return t, nil
}
