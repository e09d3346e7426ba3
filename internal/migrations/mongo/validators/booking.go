package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"resource_key",
			"hold_id",
			"version",
			"status",
			"payload",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"resource_key": bson.M{
				"bsonType":  "string",
				"minLength": 5,
				"maxLength": 200,
			},

			"hold_id": bson.M{
				"bsonType": "string",
			},

			"version": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"confirmed",
					"cancelled",
				},
			},

			"payload": bson.M{
				"bsonType": "object",
				"required": []string{"customer_ref"},
				"properties": bson.M{
					"customer_ref": bson.M{
						"bsonType":  "string",
						"minLength": 1,
						"maxLength": 100,
					},
					"service_label": bson.M{
						"bsonType":  "string",
						"maxLength": 100,
					},
					"duration_min": bson.M{
						"bsonType": "int",
						"minimum":  0,
						"maximum":  480,
					},
					"notes": bson.M{
						"bsonType":  "string",
						"maxLength": 500,
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
