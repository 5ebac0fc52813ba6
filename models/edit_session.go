package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EditStatus string

const (
	EditUploaded   EditStatus = "uploaded"
	EditProcessing EditStatus = "processing"
	EditReady      EditStatus = "ready"
	EditExported   EditStatus = "exported"
	EditFailed     EditStatus = "failed"

	// EditExpired sessions have had their source document removed.
	EditExpired EditStatus = "expired"
)

type EditSession struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"-"`
	SessionID    string              `bson:"session_id" json:"session_id"`
	UserID       primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Status       EditStatus          `bson:"status" json:"status"`
	SourceName   string              `bson:"source_name" json:"source_name"`
	SourceKey    string              `bson:"source_key" json:"-"`
	SourceSize   int64               `bson:"source_size" json:"source_size"`
	PageCount    int                 `bson:"page_count" json:"page_count"`
	Edits        EditSet             `bson:"edits" json:"edits"`
	ExportedFile *ExportedFile       `bson:"exported_file,omitempty" json:"exported_file,omitempty"`
	OperationID  *primitive.ObjectID `bson:"operation_id,omitempty" json:"operation_id,omitempty"`
	Error        string              `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}

// EditSet is the pending list of edits applied on export.
type EditSet struct {
	Rotations   map[string]int    `bson:"rotations,omitempty" json:"rotations,omitempty" validate:"omitempty,dive,keys,numeric,endkeys,oneof=90 180 270 -90"`
	RemovePages []int             `bson:"remove_pages,omitempty" json:"remove_pages,omitempty" validate:"omitempty,dive,min=1"`
	Properties  map[string]string `bson:"properties,omitempty" json:"properties,omitempty" validate:"omitempty,dive,keys,oneof=Title Author Subject Keywords Creator,endkeys,max=512"`
}

func (e EditSet) Empty() bool {
	return len(e.Rotations) == 0 && len(e.RemovePages) == 0 && len(e.Properties) == 0
}

type ExportedFile struct {
	Filename string `bson:"filename" json:"filename"`
	Key      string `bson:"key" json:"-"`
	Size     int64  `bson:"size" json:"size"`
	MimeType string `bson:"mimetype" json:"mimetype"`
}
