package store

// NomineeRecord contains the fields of an account profile's nominee saved to DB.
type NomineeRecord struct {
	AccountID    string `json:"accountId" bson:"_id"`
	NomineeEmail string `json:"nomineeEmail" bson:"nominee_email"`
}
