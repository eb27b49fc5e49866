package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anjiri1684/messaging/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UnreadReconciler repairs participant unread counters that disagree with the
// number of unread messages addressed to the participant.
type UnreadReconciler struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewUnreadReconciler(db *gorm.DB, log *slog.Logger) *UnreadReconciler {
	return &UnreadReconciler{db: db, log: log}
}

type unreadDrift struct {
	ConversationID string
	UserID         string
	UnreadCount    int64
	Actual         int64
}

// Run scans for drifted counters and fixes each one in its own transaction.
// It returns how many rows were rewritten.
func (r *UnreadReconciler) Run(ctx context.Context) (int, error) {
	var drifts []unreadDrift
	err := r.db.WithContext(ctx).
		Table("conversation_participants AS p").
		Select("p.conversation_id, p.user_id, p.unread_count, COUNT(m.id) AS actual").
		Joins("LEFT JOIN messages m ON m.conversation_id = p.conversation_id AND m.receiver_id = p.user_id AND m.read = ?", false).
		Group("p.conversation_id, p.user_id, p.unread_count").
		Having("p.unread_count <> COUNT(m.id)").
		Scan(&drifts).Error
	if err != nil {
		return 0, fmt.Errorf("reconcile: scan: %w", err)
	}

	fixed := 0
	var errs []error
	for _, d := range drifts {
		repaired, err := r.repair(ctx, d.ConversationID, d.UserID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if repaired {
			fixed++
		}
	}
	return fixed, errors.Join(errs...)
}

// repair recounts under the participant row lock, so a concurrent send or
// mark-read either fully precedes or fully follows it.
func (r *UnreadReconciler) repair(ctx context.Context, conversationID, userID string) (bool, error) {
	repaired := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.ConversationParticipant
		if err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Take(&p).Error; err != nil {
			return err
		}
		var actual int64
		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND read = ?", conversationID, userID, false).
			Count(&actual).Error; err != nil {
			return err
		}
		if actual == p.UnreadCount {
			return nil
		}
		if err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Update("unread_count", actual).Error; err != nil {
			return err
		}
		r.log.Warn("unread counter repaired",
			"conversation_id", conversationID, "user_id", userID, "stored", p.UnreadCount, "actual", actual)
		repaired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reconcile %s/%s: %w", conversationID, userID, err)
	}
	return repaired, nil
}

// Schedule registers the reconciler on c. An empty spec leaves it unscheduled.
func Schedule(c *cron.Cron, spec string, r *UnreadReconciler) (cron.EntryID, error) {
	if spec == "" {
		return 0, nil
	}
	return c.AddFunc(spec, func() {
		r.log.Info("Running job: UnreadReconciler...")
		fixed, err := r.Run(context.Background())
		if err != nil {
			r.log.Error("unread reconciliation failed", "error", err, "fixed", fixed)
			return
		}
		r.log.Info("unread reconciliation finished", "fixed", fixed)
	})
}
