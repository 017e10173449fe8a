package db

import "time"

// StoredRecord maps sift.records.
type StoredRecord struct {
	RecordID         int64      `gorm:"column:record_id;primaryKey;autoIncrement"`
	RecordUUID       string     `gorm:"column:record_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	OwnerID          string     `gorm:"column:owner_id;type:text;not null"`
	SourceRecordID   *string    `gorm:"column:source_record_id;type:text"`
	Text             *string    `gorm:"column:text;type:text"`
	Title            *string    `gorm:"column:title;type:text"`
	Body             *string    `gorm:"column:body;type:text"`
	Description      *string    `gorm:"column:description;type:text"`
	CanonicalURL     *string    `gorm:"column:canonical_url;type:text"`
	Language         string     `gorm:"column:language;type:text;not null;default:''"`
	Fingerprint      []byte     `gorm:"column:fingerprint;type:bytea;not null"`
	NormalizedLength int        `gorm:"column:normalized_length;type:integer;not null;default:0"`
	RunID            *int64     `gorm:"column:run_id;type:bigint"`
	DeletedAt        *time.Time `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (StoredRecord) TableName() string { return "sift.records" }

// ResolutionRun maps sift.resolution_runs.
type ResolutionRun struct {
	RunID                 int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID               string     `gorm:"column:run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Strategy              string     `gorm:"column:strategy;type:text;not null"`
	Status                string     `gorm:"column:status;type:sift.resolution_run_status;not null;default:running"`
	OwnerCount            int        `gorm:"column:owner_count;type:integer;not null;default:0"`
	RecordsTotal          int        `gorm:"column:records_total;type:integer;not null;default:0"`
	RecordsUnique         int        `gorm:"column:records_unique;type:integer;not null;default:0"`
	DuplicatesExternal    int        `gorm:"column:duplicates_external;type:integer;not null;default:0"`
	DuplicatesInternal    int        `gorm:"column:duplicates_internal;type:integer;not null;default:0"`
	NormalizationFailures int        `gorm:"column:normalization_failures;type:integer;not null;default:0"`
	RecordsPersisted      int        `gorm:"column:records_persisted;type:integer;not null;default:0"`
	ErrorMessage          *string    `gorm:"column:error_message;type:text"`
	StartedAt             time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt            *time.Time `gorm:"column:finished_at;type:timestamptz"`
	CreatedAt             time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ResolutionRun) TableName() string { return "sift.resolution_runs" }

func autoMigrateModels() []any {
	return []any{
		&StoredRecord{},
		&ResolutionRun{},
	}
}
