package storage

import (
	"errors"
	"fmt"
	"sort"

	"pairup/backend/internal/models"

	"gorm.io/gorm"
)

// GetUserByID loads a user row.
func (s *Service) GetUserByID(userID string) (*models.User, error) {
	ctx, cancel := s.requestCtx()
	defer cancel()

	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("failed to load user", "user_id", userID, "error", err)
		return nil, err
	}
	return &user, nil
}

// GetProfile returns the public summary of a linked account.
func (s *Service) GetProfile(userID string) (*models.ProfileSummary, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	summary := user.Summary()
	return &summary, nil
}

// GetBlockedIDs returns every user id that must never be paired with userID: the
// ones userID blocked and the ones that blocked userID.
func (s *Service) GetBlockedIDs(userID string) ([]string, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.requestCtx()
	defer cancel()

	var blockedBy []string
	if err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("? = ANY(blocked_ids)", userID).
		Pluck("id", &blockedBy).Error; err != nil {
		s.logger.Error("failed to load reverse blocks", "user_id", userID, "error", err)
		return nil, err
	}

	return mergeIDs(user.BlockedIDs, blockedBy), nil
}

// EnsureTelegramUser returns the account linked to a Telegram user, creating it on
// first contact.
func (s *Service) EnsureTelegramUser(telegramID int64) (*models.User, error) {
	ctx, cancel := s.requestCtx()
	defer cancel()

	user := models.User{TelegramID: &telegramID}
	if err := s.DB.WithContext(ctx).
		Where(models.User{TelegramID: &telegramID}).
		FirstOrCreate(&user).Error; err != nil {
		s.logger.Error("failed to ensure telegram user", "telegram_id", telegramID, "error", err)
		return nil, err
	}
	return &user, nil
}

// SaveUser inserts or updates a user.
func (s *Service) SaveUser(user *models.User) error {
	return s.DB.Save(user).Error
}

// BlockUser adds blockedID to userID's block list. Blocking twice is a no-op.
func (s *Service) BlockUser(userID, blockedID string) error {
	if userID == blockedID {
		return errors.New("a user cannot block themselves")
	}
	res := s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("blocked_ids", gorm.Expr("array_append(array_remove(blocked_ids, ?), ?)", blockedID, blockedID))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return nil
}

// UnblockUser removes blockedID from userID's block list.
func (s *Service) UnblockUser(userID, blockedID string) error {
	res := s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("blocked_ids", gorm.Expr("array_remove(blocked_ids, ?)", blockedID))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return nil
}

// SaveRoomHistory writes the audit row of a newly created room.
func (s *Service) SaveRoomHistory(history *models.RoomHistory) error {
	return s.DB.Save(history).Error
}

// CloseRoomHistory marks a room as ended.
func (s *Service) CloseRoomHistory(roomID string) error {
	res := s.DB.Model(&models.RoomHistory{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("active room %s: %w", roomID, models.ErrNotFound)
	}
	return nil
}

// CloseActiveRoomHistories ends every room still marked active. Used at startup,
// when no room survived the restart.
func (s *Service) CloseActiveRoomHistories() (int64, error) {
	res := s.DB.Model(&models.RoomHistory{}).
		Where("is_active = ?", true).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  gorm.Expr("NOW()"),
		})
	return res.RowsAffected, res.Error
}

// GetActiveRoomHistories lists open rooms, oldest first.
func (s *Service) GetActiveRoomHistories() ([]models.RoomHistory, error) {
	var rooms []models.RoomHistory
	if err := s.DB.Where("is_active = ?", true).Order("started_at asc").Find(&rooms).Error; err != nil {
		s.logger.Error("failed to list active rooms", "error", err)
		return nil, err
	}
	return rooms, nil
}

func mergeIDs(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
