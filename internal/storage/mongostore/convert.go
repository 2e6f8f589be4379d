package mongostore

import (
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"invoicedash/internal"
)

func documentID(raw internal.RawRecord) string {
	if id, ok := raw["id"].(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// toRawRecord turns a stored invoice into the shape the normalizer reads:
// plain maps and slices, "_id" exposed as "id", bookkeeping fields removed.
func toRawRecord(doc bson.M) internal.RawRecord {
	raw := make(internal.RawRecord, len(doc))
	for k, v := range doc {
		switch k {
		case "_id":
			raw["id"] = idString(v)
		case createdAtField:
		default:
			raw[k] = plain(v)
		}
	}
	return raw
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case primitive.ObjectID:
		return t.Hex()
	default:
		return ""
	}
}

func plain(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = plain(inner)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, 0, len(t))
		for _, inner := range t {
			out = append(out, plain(inner))
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format("2006-01-02")
	case primitive.Decimal128:
		return t.String()
	default:
		return v
	}
}
