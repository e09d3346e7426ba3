package validators

import "go.mongodb.org/mongo-driver/bson"

var ResourceVersionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"version",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 5,
				"maxLength": 200,
			},

			"version": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
