package validators

import "go.mongodb.org/mongo-driver/bson"

// ParticipantValidator leaves bib loosely typed:
// legacy documents with malformed values must stay readable so they can be fixed.
var ParticipantValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"first_name", "last_name", "phone", "category", "status", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":        bson.M{"bsonType": "objectId"},
			"first_name": bson.M{"bsonType": "string", "maxLength": 100},
			"last_name":  bson.M{"bsonType": "string", "maxLength": 100},
			"phone":      bson.M{"bsonType": "string"},
			"email":      bson.M{"bsonType": "string"},
			"category":   bson.M{"bsonType": "string"},
			"bib":        bson.M{"bsonType": []string{"string", "int", "long"}},
			"status": bson.M{
				"bsonType": "string",
				"enum":     []string{"pending", "confirmed"},
			},
			"payment_reference": bson.M{"bsonType": "string", "maxLength": 200},
			"created_at":        bson.M{"bsonType": "date"},
			"confirmed_at":      bson.M{"bsonType": "date"},
		},
	},
}
