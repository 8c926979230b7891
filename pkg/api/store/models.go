package store

import "time"

// SourceConfig marks users seeded from the config file.
const SourceConfig = "config"

// User represents a basic-auth API user.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Source       string    `gorm:"not null" json:"source"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Report is one indexed audit report directory.
type Report struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// ReportID is the UUID from the report payload.
	ReportID string `gorm:"uniqueIndex;not null" json:"id"`

	// DirName is the report directory name under the results root.
	DirName string `gorm:"uniqueIndex;not null" json:"dir_name"`

	GeneratedAt     time.Time `json:"generated_at"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	TATStandardDays int       `json:"tat_standard_days"`
	TotalRuns       int       `json:"total_runs"`

	IndexedAt   time.Time  `json:"indexed_at"`
	ReindexedAt *time.Time `json:"reindexed_at,omitempty"`
}

// AssaySummary is one per-assay compliance row of an indexed report.
type AssaySummary struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	ReportID string `gorm:"index;not null" json:"-"`

	AssayType            string  `gorm:"not null" json:"assay_type"`
	TotalRuns            int     `json:"total_runs"`
	RelevantCount        int     `json:"relevant_count"`
	CompliantCount       int     `json:"compliant_count"`
	CompliancePercentage float64 `json:"compliance_percentage"`

	// Stage averages stay nil when no run of the assay had the
	// interval defined.
	MeanUploadToRelease   *float64 `json:"mean_upload_to_release"`
	MedianUploadToRelease *float64 `json:"median_upload_to_release"`
}
