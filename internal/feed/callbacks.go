package feed

import (
	"gorm.io/gorm"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

// Table is the table whose changes are published.
const Table = "website_generations"

// RegisterCallbacks publishes an Event for every successful create, update,
// and delete on Table made through db. The hooks run after GORM commits the
// statement's implicit transaction.
func RegisterCallbacks(db *gorm.DB, b *Broker) error {
	cb := db.Callback()
	const after = "gorm:commit_or_rollback_transaction"
	if err := cb.Create().After(after).Register("feed:after_create", hook(b, OpInsert)); err != nil {
		return err
	}
	if err := cb.Update().After(after).Register("feed:after_update", hook(b, OpUpdate)); err != nil {
		return err
	}
	return cb.Delete().After(after).Register("feed:after_delete", hook(b, OpDelete))
}

func hook(b *Broker, op Op) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		if tx.Error != nil || tx.RowsAffected == 0 {
			return
		}
		if tx.Statement.Schema == nil || tx.Statement.Schema.Table != Table {
			return
		}
		rows := changedRows(tx.Statement.Dest)
		if len(rows) == 0 {
			// Owner unknown (e.g. a bulk delete by condition): reach everyone.
			b.Publish(Event{Op: op})
			return
		}
		for _, g := range rows {
			b.Publish(Event{Op: op, ID: g.ID, OwnerID: g.UserID})
		}
	}
}

func changedRows(dest any) []domain.Generation {
	switch v := dest.(type) {
	case *domain.Generation:
		if v != nil && v.UserID != "" {
			return []domain.Generation{*v}
		}
	case domain.Generation:
		if v.UserID != "" {
			return []domain.Generation{v}
		}
	case *[]domain.Generation:
		if v != nil {
			return ownedOnly(*v)
		}
	case []domain.Generation:
		return ownedOnly(v)
	}
	return nil
}

func ownedOnly(in []domain.Generation) []domain.Generation {
	for _, g := range in {
		if g.UserID == "" {
			return nil
		}
	}
	return in
}
