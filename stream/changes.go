// Package stream decodes DynamoDB stream events into typed change
// notifications for tables managed through strata.
package stream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/jacentio/strata/schema"
	"github.com/jacentio/strata/store"
)

// Kind classifies a change record.
type Kind int

const (
	// Insert is the first write of an item (stored version 1).
	Insert Kind = iota

	// Update is a subsequent versioned write.
	Update

	// Expire is DynamoDB removing an item whose TTL elapsed.
	Expire

	// Remove is any other deletion.
	Remove
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Expire:
		return "expire"
	}
	return "remove"
}

// Change is one decoded stream record.
type Change struct {
	Kind Kind

	// Key is the primary key of the changed item.
	Key store.PK

	// OldVersion and NewVersion are the version-attribute values around
	// the change; 0 means absent.
	OldVersion int64
	NewVersion int64

	// New and Old are the raw item images as published on the stream.
	New map[string]events.DynamoDBAttributeValue
	Old map[string]events.DynamoDBAttributeValue
}

// Handler turns DynamoDB stream events into Change callbacks. It is shaped
// to be used directly as an AWS Lambda handler.
type Handler struct {
	table *schema.Table
	fn    func(context.Context, Change) error
	log   zerolog.Logger
}

// NewHandler creates a stream handler for one table. fn is invoked once per
// record, in record order; its error aborts the batch so the event source
// can retry.
func NewHandler(table *schema.Table, fn func(context.Context, Change) error, log zerolog.Logger) *Handler {
	return &Handler{table: table, fn: fn, log: log.With().Str("table", table.Name).Logger()}
}

// HandleEvent processes one stream event.
func (h *Handler) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		change, err := h.decode(record)
		if err != nil {
			return fmt.Errorf("stream: record %s: %w", record.EventID, err)
		}
		if err := h.fn(ctx, change); err != nil {
			h.log.Error().
				Str("event_id", record.EventID).
				Stringer("kind", change.Kind).
				Err(err).
				Msg("change callback failed")
			return err
		}
	}
	return nil
}

func (h *Handler) decode(record events.DynamoDBEventRecord) (Change, error) {
	change := Change{
		Key: convertKey(record.Change.Keys),
		New: record.Change.NewImage,
		Old: record.Change.OldImage,
	}
	if h.table.VersionAttr != "" {
		change.OldVersion = numberAttr(record.Change.OldImage, h.table.VersionAttr)
		change.NewVersion = numberAttr(record.Change.NewImage, h.table.VersionAttr)
	}

	switch record.EventName {
	case "INSERT":
		change.Kind = Insert
	case "MODIFY":
		change.Kind = Update
	case "REMOVE":
		change.Kind = Remove
		if h.expiredByTTL(record.Change.OldImage) {
			change.Kind = Expire
		}
	default:
		return Change{}, fmt.Errorf("unknown event name %q", record.EventName)
	}
	return change, nil
}

// expiredByTTL reports whether the removed image carried an elapsed TTL,
// which is how DynamoDB's own expiry deletions look on the stream.
func (h *Handler) expiredByTTL(old map[string]events.DynamoDBAttributeValue) bool {
	if h.table.TTLAttr == "" {
		return false
	}
	ttl := numberAttr(old, h.table.TTLAttr)
	return ttl > 0 && ttl <= time.Now().Unix()
}

// numberAttr extracts a number attribute from a stream image.
func numberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// convertKey converts a stream key image to a store.PK.
func convertKey(streamKey map[string]events.DynamoDBAttributeValue) store.PK {
	result := make(store.PK, len(streamKey))
	for k, v := range streamKey {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}
