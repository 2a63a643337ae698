package repository

import (
	"fmt"
	"strconv"
	"strings"

	"racereg/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Bibs written before values were stored as strings may still hold a number.
// Such values are exposed as "<type>:<value>" (for example "int:5003"), a form
// bib.IsValid always rejects, so snapshots skip them and repair replaces them.
const (
	legacyInt    = "int"
	legacyLong   = "long"
	legacyDouble = "double"
	legacyType   = "type"
)

// storedBib renders the bib field as the text the service works with.
func storedBib(v bson.RawValue) string {
	switch v.Type {
	case 0, bsontype.Null, bsontype.Undefined:
		return ""
	case bsontype.String:
		return v.StringValue()
	case bsontype.Int32:
		return legacyInt + ":" + strconv.FormatInt(int64(v.Int32()), 10)
	case bsontype.Int64:
		return legacyLong + ":" + strconv.FormatInt(v.Int64(), 10)
	case bsontype.Double:
		return legacyDouble + ":" + strconv.FormatFloat(v.Double(), 'f', -1, 64)
	default:
		return fmt.Sprintf("%s%d:", legacyType, byte(v.Type))
	}
}

// bibMatch is the filter value selecting a document whose bib renders as stored.
// Numeric forms also match the literal string, in case a string bib happens to
// look like a legacy one.
func bibMatch(stored string) any {
	kind, value, ok := strings.Cut(stored, ":")
	if !ok {
		return stored
	}

	switch kind {
	case legacyInt:
		if n, err := strconv.ParseInt(value, 10, 32); err == nil {
			return bson.M{"$in": bson.A{stored, int32(n)}}
		}
	case legacyLong:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return bson.M{"$in": bson.A{stored, n}}
		}
	case legacyDouble:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return bson.M{"$in": bson.A{stored, f}}
		}
	default:
		if rest, found := strings.CutPrefix(kind, legacyType); found && value == "" {
			if code, err := strconv.Atoi(rest); err == nil {
				return bson.M{"$type": code}
			}
		}
	}
	return stored
}

// decodeParticipant decodes a participant document, rewriting a non-string bib
// into its legacy text form first.
func decodeParticipant(raw bson.Raw) (*model.Participant, error) {
	var participant model.Participant

	value, err := raw.LookupErr("bib")
	if err != nil || value.Type == bsontype.String || value.Type == bsontype.Null {
		if err := bson.Unmarshal(raw, &participant); err != nil {
			return nil, err
		}
		return &participant, nil
	}

	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for i := range doc {
		if doc[i].Key == "bib" {
			doc[i].Value = storedBib(value)
		}
	}
	rewritten, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := bson.Unmarshal(rewritten, &participant); err != nil {
		return nil, err
	}
	return &participant, nil
}
