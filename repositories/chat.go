package repositories

import (
	"fmt"
	"math"
	"strings"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/samber/lo"
)

// Key layout
//
//	chat:{chatID}            -> chatRecord
//	dm:{userLow}:{userHigh}  -> chatID
//	uchat:{userID}:{chatID}  -> (empty) membership index
func chatKey(id domain.ChatID) string { return "chat:" + string(id) }

func directKey(a, b domain.UserID) string { return "dm:" + domain.DirectKey(a, b) }

func userChatPrefix(userID domain.UserID) string { return "uchat:" + string(userID) + ":" }

func userChatKey(userID domain.UserID, chatID domain.ChatID) string {
	return userChatPrefix(userID) + string(chatID)
}

type chatRecord struct {
	ID            string   `json:"id"`
	IsGroup       bool     `json:"isGroup"`
	Name          string   `json:"name,omitempty"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	Members       []string `json:"members"`
	LastMessageID string   `json:"lastMessageId,omitempty"`
	CreatedBy     string   `json:"createdBy"`
	CreatedAt     int64    `json:"createdAt"`
}

func (t *Txn) GetChat(id domain.ChatID) (domain.Chat, error) {
	var rec chatRecord
	if err := t.getJSON(chatKey(id), &rec); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return domain.Chat{}, fmt.Errorf("chat %s: %w", id, errors.ErrNotFound)
		}
		return domain.Chat{}, err
	}
	return toChat(rec), nil
}

// PutChat writes the chat and keeps the per-user membership index in line with
// chat.Members. previous is the stored version, or nil on creation.
func (t *Txn) PutChat(chat domain.Chat, previous *domain.Chat) error {
	if err := t.putJSON(chatKey(chat.ID), fromChat(chat)); err != nil {
		return err
	}
	var before []domain.UserID
	if previous != nil {
		before = previous.Members
	}
	added, removed := lo.Difference(chat.Members, before)
	for _, userID := range added {
		if err := t.txn.Set([]byte(userChatKey(userID, chat.ID)), nil); err != nil {
			return err
		}
	}
	for _, userID := range removed {
		if err := t.delete(userChatKey(userID, chat.ID)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteChat removes the chat record, its DM index and its sequence counter.
// Messages are purged afterwards with Store.PurgeChat.
func (t *Txn) DeleteChat(chat domain.Chat) error {
	for _, userID := range chat.Members {
		if err := t.delete(userChatKey(userID, chat.ID)); err != nil {
			return err
		}
	}
	if !chat.IsGroup && len(chat.Members) == 2 {
		if err := t.delete(directKey(chat.Members[0], chat.Members[1])); err != nil {
			return err
		}
	}
	if err := t.delete(sequenceKey(chat.ID)); err != nil {
		return err
	}
	return t.delete(chatKey(chat.ID))
}

// FindDirectChat returns the DM id for the unordered pair, or ErrNotFound.
func (t *Txn) FindDirectChat(a, b domain.UserID) (domain.ChatID, error) {
	raw, err := t.getRaw(directKey(a, b))
	if err != nil {
		return "", err
	}
	return domain.ChatID(raw), nil
}

// CreateDirectChat stores a new DM unless one already exists for the pair, in
// which case the existing chat is returned together with ErrAlreadyExists.
// Reading the pair key first makes two concurrent creations conflict.
func (t *Txn) CreateDirectChat(chat domain.Chat) (domain.Chat, error) {
	existingID, err := t.FindDirectChat(chat.Members[0], chat.Members[1])
	switch {
	case err == nil:
		existing, err := t.GetChat(existingID)
		if err != nil {
			return domain.Chat{}, err
		}
		return existing, errors.ErrAlreadyExists
	case !errors.Is(err, errors.ErrNotFound):
		return domain.Chat{}, err
	}
	if err = t.txn.Set([]byte(directKey(chat.Members[0], chat.Members[1])), []byte(chat.ID)); err != nil {
		return domain.Chat{}, err
	}
	return chat, t.PutChat(chat, nil)
}

func (t *Txn) ListChatIDs(userID domain.UserID) ([]domain.ChatID, error) {
	suffixes, err := t.scanKeys(userChatPrefix(userID), false)
	if err != nil {
		return nil, err
	}
	return lo.Map(suffixes, func(s string, _ int) domain.ChatID { return domain.ChatID(s) }), nil
}

// ChatPrefixes lists the key ranges owned by a chat once its record is gone.
func ChatPrefixes(chatID domain.ChatID) []string {
	return []string{messagePrefix(chatID), watermarkPrefix(chatID)}
}

// PurgeChat removes what a deleted chat leaves behind: the message id index,
// the notification links of its messages, then the message and watermark
// ranges. Notifications stay in their recipients' inboxes.
func (s *Store) PurgeChat(chatID domain.ChatID) error {
	var orphans []string
	err := s.View(func(tx *Txn) error {
		messages, err := tx.ScanMessages(chatID, 1, math.MaxUint64)
		if err != nil {
			return err
		}
		ids := lo.SliceToMap(messages, func(m domain.Message) (domain.MessageID, struct{}) { return m.ID, struct{}{} })
		orphans = lo.Map(messages, func(m domain.Message, _ int) string { return messageIDKey(m.ID) })
		links, err := tx.scanKeys(linkPrefix, false)
		if err != nil {
			return err
		}
		for _, link := range links {
			// user ids never contain ':', the message id is the last segment
			messageID := domain.MessageID(link[strings.LastIndexByte(link, ':')+1:])
			if _, ok := ids[messageID]; ok {
				orphans = append(orphans, linkPrefix+link)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("collect %s: %w", chatID, err)
	}

	batch := s.db.NewWriteBatch()
	for _, key := range orphans {
		if err = batch.Delete([]byte(key)); err != nil {
			batch.Cancel()
			return err
		}
	}
	if err = batch.Flush(); err != nil {
		return fmt.Errorf("delete index of %s: %w", chatID, err)
	}
	s.log.Debug("Purged chat indexes", "chat", chatID, "keys", len(orphans))
	return s.DropPrefixes(ChatPrefixes(chatID)...)
}

func fromChat(chat domain.Chat) chatRecord {
	rec := chatRecord{
		ID:        string(chat.ID),
		IsGroup:   chat.IsGroup,
		Name:      chat.Name,
		ImageURL:  chat.ImageURL,
		Members:   lo.Map(chat.Members, func(u domain.UserID, _ int) string { return string(u) }),
		CreatedBy: string(chat.CreatedBy),
		CreatedAt: toUnix(chat.CreatedAt),
	}
	if chat.LastMessageID != nil {
		rec.LastMessageID = string(*chat.LastMessageID)
	}
	return rec
}

func toChat(rec chatRecord) domain.Chat {
	chat := domain.Chat{
		ID:        domain.ChatID(rec.ID),
		IsGroup:   rec.IsGroup,
		Name:      rec.Name,
		ImageURL:  rec.ImageURL,
		Members:   lo.Map(rec.Members, func(u string, _ int) domain.UserID { return domain.UserID(u) }),
		CreatedBy: domain.UserID(rec.CreatedBy),
		CreatedAt: fromUnix(rec.CreatedAt),
	}
	if rec.LastMessageID != "" {
		chat.LastMessageID = lo.ToPtr(domain.MessageID(rec.LastMessageID))
	}
	return chat
}
