package model

import (
	"context"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/one-chat/one-chat/common/random"
)

// UploadedDocument is the single live document of a user.
type UploadedDocument struct {
	Id        string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Owner     string `json:"-" gorm:"type:varchar(128);uniqueIndex;not null"`
	Filename  string `json:"filename" gorm:"type:varchar(255)"`
	FileType  string `json:"file_type" gorm:"type:varchar(16)"`
	Content   string `json:"-" gorm:"type:text"`
	Truncated bool   `json:"truncated"`
	// InjectedInto is the latest conversation the document was folded into.
	InjectedInto string `json:"injected_into" gorm:"type:varchar(64);default:''"`
	CreatedTime  int64  `json:"created_time" gorm:"bigint"`
}

// DocumentInjection records that a document was added to a conversation's history.
type DocumentInjection struct {
	DocumentId     string `gorm:"primaryKey;type:varchar(64)"`
	ConversationId string `gorm:"primaryKey;type:varchar(64);index"`
	CreatedTime    int64  `gorm:"bigint"`
}

// GetDocument returns owner's document or nil when there is none.
func (s *Store) GetDocument(ctx context.Context, owner string) (*UploadedDocument, error) {
	var doc UploadedDocument
	err := s.db.WithContext(ctx).Where("owner = ?", owner).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load document of %s", owner)
	}
	return &doc, nil
}

// PendingDocument returns owner's document if it has not been injected into
// conversationID yet, otherwise nil.
func (s *Store) PendingDocument(ctx context.Context, owner, conversationID string) (*UploadedDocument, error) {
	doc, err := s.GetDocument(ctx, owner)
	if err != nil || doc == nil {
		return nil, err
	}

	var n int64
	if err = s.db.WithContext(ctx).Model(&DocumentInjection{}).
		Where("document_id = ? AND conversation_id = ?", doc.Id, conversationID).
		Count(&n).Error; err != nil {
		return nil, errors.Wrap(err, "check document injection")
	}
	if n > 0 {
		return nil, nil
	}
	return doc, nil
}

// SetDocument replaces owner's document. The new document has no injections.
func (s *Store) SetDocument(ctx context.Context, owner string, doc *UploadedDocument) error {
	doc.Id = random.GetUUID()
	doc.Owner = owner
	doc.InjectedInto = ""
	doc.CreatedTime = s.nowMilli()

	err := withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := clearDocumentTx(tx, owner); err != nil {
				return err
			}
			return errors.Wrap(tx.Create(doc).Error, "insert document")
		})
	})
	return errors.Wrapf(err, "set document of %s", owner)
}

// ClearDocument removes owner's document and reports whether one existed.
func (s *Store) ClearDocument(ctx context.Context, owner string) (bool, error) {
	var existed bool
	err := withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&UploadedDocument{}).Where("owner = ?", owner).Count(&n).Error; err != nil {
				return errors.Wrap(err, "check document")
			}
			existed = n > 0
			return clearDocumentTx(tx, owner)
		})
	})
	if err != nil {
		return false, errors.Wrapf(err, "clear document of %s", owner)
	}
	return existed, nil
}

func clearDocumentTx(tx *gorm.DB, owner string) error {
	var ids []string
	if err := tx.Model(&UploadedDocument{}).Where("owner = ?", owner).Pluck("id", &ids).Error; err != nil {
		return errors.Wrap(err, "load documents")
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("document_id IN ?", ids).Delete(&DocumentInjection{}).Error; err != nil {
		return errors.Wrap(err, "delete document injections")
	}
	return errors.Wrap(tx.Where("owner = ?", owner).Delete(&UploadedDocument{}).Error, "delete document")
}

// MarkInjected records that documentID is now part of conversationID's history.
// Marking twice is a no-op.
func (s *Store) MarkInjected(ctx context.Context, owner, documentID, conversationID string) error {
	err := withBusyRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&UploadedDocument{}).
				Where("id = ? AND owner = ?", documentID, owner).
				Update("injected_into", conversationID)
			if res.Error != nil {
				return errors.Wrap(res.Error, "update document")
			}
			if res.RowsAffected == 0 {
				// replaced or cleared in the meantime
				return nil
			}
			return errors.Wrap(tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&DocumentInjection{
				DocumentId:     documentID,
				ConversationId: conversationID,
				CreatedTime:    s.nowMilli(),
			}).Error, "insert document injection")
		})
	})
	return errors.Wrapf(err, "mark document %s injected", documentID)
}
