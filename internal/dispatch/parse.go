package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// DecodeBatch decodes a raw SQS invocation payload. A missing or null event,
// a missing, null or non-array Records field, and an empty batch all fail with
// types.ErrInputEmpty.
func DecodeBatch(raw json.RawMessage) (events.SQSEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return events.SQSEvent{}, types.ErrInputEmpty
	}

	var envelope struct {
		Records json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return events.SQSEvent{}, types.ErrInputEmpty
	}
	records := bytes.TrimSpace(envelope.Records)
	if len(records) == 0 || records[0] != '[' {
		return events.SQSEvent{}, types.ErrInputEmpty
	}

	var event events.SQSEvent
	if err := json.Unmarshal(records, &event.Records); err != nil {
		return events.SQSEvent{}, fmt.Errorf("%w: %v", types.ErrInputEmpty, err)
	}
	if len(event.Records) == 0 {
		return events.SQSEvent{}, types.ErrInputEmpty
	}
	return event, nil
}

// streamRecord is a DynamoDB stream record forwarded to the queue as the
// message body.
type streamRecord struct {
	EventName string `json:"eventName"`
	DynamoDB  *struct {
		NewImage map[string]events.DynamoDBAttributeValue `json:"NewImage"`
	} `json:"dynamodb"`
}

// ParseVisit decodes a message body into a validated Visit. The body is either
// the visit document itself or a DynamoDB stream record whose NewImage holds
// it.
func ParseVisit(body string) (types.Visit, error) {
	var rec streamRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return types.Visit{}, fmt.Errorf("%w: decoding message body: %v", types.ErrMalformedActivityEvent, err)
	}

	var visit types.Visit
	if rec.DynamoDB != nil {
		if rec.DynamoDB.NewImage == nil {
			return types.Visit{}, fmt.Errorf("%w: stream record has no NewImage", types.ErrMalformedActivityEvent)
		}
		item, err := toItem(rec.DynamoDB.NewImage)
		if err != nil {
			return types.Visit{}, fmt.Errorf("%w: converting NewImage: %v", types.ErrMalformedActivityEvent, err)
		}
		if err := attributevalue.UnmarshalMapWithOptions(item, &visit, func(o *attributevalue.DecoderOptions) {
			o.TagKey = "json"
		}); err != nil {
			return types.Visit{}, fmt.Errorf("%w: decoding NewImage: %v", types.ErrMalformedActivityEvent, err)
		}
	} else if err := json.Unmarshal([]byte(body), &visit); err != nil {
		return types.Visit{}, fmt.Errorf("%w: decoding visit: %v", types.ErrMalformedActivityEvent, err)
	}

	if err := visit.Validate(); err != nil {
		return types.Visit{}, err
	}
	return visit, nil
}

func toItem(image map[string]events.DynamoDBAttributeValue) (map[string]ddbtypes.AttributeValue, error) {
	item := make(map[string]ddbtypes.AttributeValue, len(image))
	for k, v := range image {
		av, err := toAttributeValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		item[k] = av
	}
	return item, nil
}

// toAttributeValue converts a stream attribute to its SDK v2 form so the
// attributevalue decoder can be used on stream images.
func toAttributeValue(v events.DynamoDBAttributeValue) (ddbtypes.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &ddbtypes.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &ddbtypes.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBoolean:
		return &ddbtypes.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeNull:
		return &ddbtypes.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeBinary:
		return &ddbtypes.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeStringSet:
		return &ddbtypes.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &ddbtypes.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &ddbtypes.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]ddbtypes.AttributeValue, 0, len(list))
		for i, e := range list {
			av, err := toAttributeValue(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out = append(out, av)
		}
		return &ddbtypes.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m, err := toItem(v.Map())
		if err != nil {
			return nil, err
		}
		return &ddbtypes.AttributeValueMemberM{Value: m}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type %v", v.DataType())
	}
}
