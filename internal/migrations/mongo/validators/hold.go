package validators

import "go.mongodb.org/mongo-driver/bson"

var HoldValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"resource_key",
			"owner_session",
			"fencing_token",
			"version",
			"status",
			"expires_at",
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

			"owner_session": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"fencing_token": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"version": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"active",
					"expired",
					"converted",
					"released",
				},
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
