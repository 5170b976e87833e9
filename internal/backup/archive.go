package backup

import (
	"context"
	"time"

	"github.com/davidalonso/posstack-backend/pkg/db"
)

// ArchiveRecord is one row in the optional snapshot archive database. Data
// holds exactly the bytes written to the snapshot file, so the archive
// carries the same confidentiality guarantee as the file path.
type ArchiveRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Filename   string `gorm:"size:255;index"`
	Timestamp  int64
	Statistics string `gorm:"type:text"`
	Data       []byte
	CreatedAt  time.Time
}

// TableName keeps the archive table name stable.
func (ArchiveRecord) TableName() string {
	return "snapshot_archive"
}

// Archive persists snapshot records to the archive database.
type Archive struct {
	client *db.Client
}

// NewArchive wraps the database client and ensures the archive table exists.
func NewArchive(client *db.Client) (*Archive, error) {
	if client == nil {
		return nil, errArchiveClientRequired
	}
	if err := client.DB().AutoMigrate(&ArchiveRecord{}); err != nil {
		return nil, err
	}
	return &Archive{client: client}, nil
}

// Insert appends one snapshot record.
func (a *Archive) Insert(ctx context.Context, rec *ArchiveRecord) error {
	return a.client.DB().WithContext(ctx).Create(rec).Error
}
