package domain

// Commands carry caller input; validation tags are checked by the services
// before any transaction starts.

type CreateDirectChatCommand struct {
	UserA UserID `validate:"required,nefield=UserB"`
	UserB UserID `validate:"required"`
}

type CreateGroupChatCommand struct {
	Creator  UserID   `validate:"required"`
	Members  []UserID `validate:"required,min=1,dive,required"`
	Name     string   `validate:"required,max=128"`
	ImageURL string   `validate:"omitempty,url"`
}

type SendMessageCommand struct {
	ChatID   ChatID `validate:"required"`
	SenderID UserID `validate:"required"`
	Content  string
	FileID   string
}

type ListMessagesCommand struct {
	ChatID ChatID `validate:"required"`
	Cursor Cursor
	Limit  int `validate:"gte=0"`
}

// NotifyCommand lets producers outside of messaging (likes, follows, comments)
// raise a notification.
type NotifyCommand struct {
	SendTo    UserID           `validate:"required"`
	Sender    UserID           `validate:"required"`
	Type      NotificationType `validate:"required,oneof=mention comment like follow general"`
	Title     string           `validate:"required,max=256"`
	Message   string           `validate:"max=1024"`
	PostID    string
	CommentID string
}
