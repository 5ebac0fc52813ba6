package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Tool string

const (
	ToolConvert  Tool = "convert"
	ToolOrganize Tool = "organize"
	ToolEdit     Tool = "edit"
	ToolSecurity Tool = "security"
	ToolOptimize Tool = "optimize"
	ToolOCR      Tool = "ocr"
	ToolAdvanced Tool = "advanced"
)

var toolCategories = map[Tool]Category{
	ToolConvert:  CategoryConversion,
	ToolOCR:      CategoryConversion,
	ToolOrganize: CategoryOrganize,
	ToolEdit:     CategoryEdit,
	ToolSecurity: CategorySecurity,
	ToolOptimize: CategoryOptimize,
	ToolAdvanced: CategoryAdvanced,
}

// Category is the quota a tool is metered against.
func (t Tool) Category() (Category, bool) {
	c, ok := toolCategories[t]
	return c, ok
}

func (t Tool) Valid() bool {
	_, ok := toolCategories[t]
	return ok
}

type OperationStatus string

const (
	OperationProcessing OperationStatus = "processing"
	OperationDone       OperationStatus = "done"
	OperationFailed     OperationStatus = "failed"
)

func (s OperationStatus) Terminal() bool {
	return s == OperationDone || s == OperationFailed
}

// Operation is the append-only record of one tool invocation.
type Operation struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID `bson:"user_id" json:"user_id"`
	Tool             Tool               `bson:"tool" json:"tool"`
	Action           string             `bson:"action" json:"action"`
	Category         Category           `bson:"category" json:"category"`
	InputNames       []string           `bson:"input_names" json:"input_names"`
	InputSize        int64              `bson:"input_size" json:"input_size"`
	OutputName       string             `bson:"output_name,omitempty" json:"output_name,omitempty"`
	OutputSize       int64              `bson:"output_size,omitempty" json:"output_size,omitempty"`
	MimeType         string             `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	ReductionPercent float64            `bson:"reduction_percent,omitempty" json:"reduction_percent,omitempty"`
	Params           map[string]string  `bson:"params,omitempty" json:"params,omitempty"`
	Status           OperationStatus    `bson:"status" json:"status"`
	Error            string             `bson:"error,omitempty" json:"error,omitempty"`
	ArtifactKey      string             `bson:"artifact_key,omitempty" json:"-"`
	ChargedFrom      CreditSource       `bson:"charged_from,omitempty" json:"charged_from,omitempty"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	CompletedAt      *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`

	// ArtifactRemovedAt is set once the stored output has been deleted.
	ArtifactRemovedAt *time.Time `bson:"artifact_removed_at,omitempty" json:"artifact_removed_at,omitempty"`
}

// OperationResult is what a successful operation writes on completion.
type OperationResult struct {
	OutputName       string
	OutputSize       int64
	MimeType         string
	ArtifactKey      string
	ReductionPercent float64
	ChargedFrom      CreditSource
}
