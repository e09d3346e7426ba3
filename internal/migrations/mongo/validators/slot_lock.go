package validators

import "go.mongodb.org/mongo-driver/bson"

var SlotLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"owner",
			"fencing_token",
			"expires_at",
			"released",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 5,
				"maxLength": 200,
			},

			"owner": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"fencing_token": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},

			"released": bson.M{
				"bsonType": "bool",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
