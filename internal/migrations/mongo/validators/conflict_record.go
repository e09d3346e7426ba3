package validators

import "go.mongodb.org/mongo-driver/bson"

var ConflictRecordValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"resource_key",
			"kind",
			"competing_claims",
			"resolution_strategy",
			"detected_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"resource_key": bson.M{
				"bsonType":  "string",
				"minLength": 5,
				"maxLength": 200,
			},

			"kind": bson.M{
				"bsonType": "string",
				"enum": []string{
					"hold_collision",
					"booking_collision",
					"version_conflict",
					"cache_conflict",
				},
			},

			"competing_claims": bson.M{
				"bsonType": "array",
				"minItems": 1,
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"owner_session", "arrived_at"},
				},
			},

			"resolution_strategy": bson.M{
				"bsonType": "string",
				"enum": []string{
					"fcfs",
					"last_wins",
					"priority",
					"rollback_all",
					"consensus",
					"arbitration",
					"admin",
				},
			},

			"voided": bson.M{
				"bsonType": "bool",
			},

			"escalated": bson.M{
				"bsonType": "bool",
			},

			"detected_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
