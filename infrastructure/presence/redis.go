package presence

import (
	"context"
	"fmt"

	"chat-core/domain"

	"github.com/redis/go-redis/v9"
)

const (
	onlineKey     = "presence:online"
	profilePrefix = "presence:profile:"
)

// RedisDirectory shares profiles and online state between server instances.
// Profiles are hashes, online users a set.
type RedisDirectory struct {
	client *redis.Client
}

func NewRedisDirectory(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

func profileKey(userID domain.UserID) string { return profilePrefix + string(userID) }

func (d *RedisDirectory) Resolve(ctx context.Context, userIDs []domain.UserID) (map[domain.UserID]domain.ChatMember, error) {
	if len(userIDs) == 0 {
		return map[domain.UserID]domain.ChatMember{}, nil
	}
	members := make([]any, 0, len(userIDs))
	profiles := make([]*redis.MapStringStringCmd, 0, len(userIDs))
	pipe := d.client.Pipeline()
	for _, userID := range userIDs {
		members = append(members, string(userID))
		profiles = append(profiles, pipe.HGetAll(ctx, profileKey(userID)))
	}
	online := pipe.SMIsMember(ctx, onlineKey, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("resolve presence: %w", err)
	}

	flags := online.Val()
	resolved := make(map[domain.UserID]domain.ChatMember, len(userIDs))
	for i, userID := range userIDs {
		fields := profiles[i].Val()
		isOnline := i < len(flags) && flags[i]
		if len(fields) == 0 && !isOnline {
			continue
		}
		resolved[userID] = domain.ChatMember{
			UserID:      userID,
			Handle:      fields["handle"],
			DisplayName: fields["displayName"],
			AvatarURL:   fields["avatarUrl"],
			IsOnline:    isOnline,
		}
	}
	return resolved, nil
}

func (d *RedisDirectory) Upsert(ctx context.Context, member domain.ChatMember) error {
	err := d.client.HSet(ctx, profileKey(member.UserID),
		"handle", member.Handle,
		"displayName", member.DisplayName,
		"avatarUrl", member.AvatarURL,
	).Err()
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", member.UserID, err)
	}
	return nil
}

func (d *RedisDirectory) SetOnline(ctx context.Context, userID domain.UserID, online bool) error {
	var err error
	if online {
		err = d.client.SAdd(ctx, onlineKey, string(userID)).Err()
	} else {
		err = d.client.SRem(ctx, onlineKey, string(userID)).Err()
	}
	if err != nil {
		return fmt.Errorf("set presence of %s: %w", userID, err)
	}
	return nil
}
