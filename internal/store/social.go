package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperengineering/fitsync/internal/types"
)

// AcceptFriendInvite redeems an invite code for userID by writing an accepted
// friend edge. The invite row belongs to the inviter and is left untouched.
func (s *SQLiteStore) AcceptFriendInvite(ctx context.Context, code, userID string) (*types.Friend, error) {
	inv, err := s.FriendInvites.ByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("accept friend invite: %w", err)
	}
	if inv.Status != types.InvitePending {
		return nil, fmt.Errorf("accept friend invite: %w", ErrInviteClosed)
	}
	if inv.ExpiresAt != nil && !inv.ExpiresAt.After(s.stamp.now()) {
		return nil, fmt.Errorf("accept friend invite: %w", ErrInviteClosed)
	}
	if inv.InviteeID != nil && *inv.InviteeID != userID {
		return nil, fmt.Errorf("accept friend invite: %w", ErrNotPermitted)
	}
	if inv.InviterID == userID {
		return nil, fmt.Errorf("accept friend invite: %w: own invite", ErrInvalidInput)
	}

	existing, err := s.Friends.Between(ctx, inv.InviterID, userID)
	switch {
	case err == nil:
		if existing.Status != types.FriendAccepted {
			if err := s.Friends.Update(ctx, existing.ID, types.FriendPatch{Status: types.Ptr(types.FriendAccepted)}); err != nil {
				return nil, err
			}
		}
		return s.Friends.Get(ctx, existing.ID)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	edge := &types.Friend{UserID: inv.InviterID, FriendUserID: userID, Status: types.FriendAccepted}
	if _, err := s.Friends.Create(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// AcceptGroupInvite joins userID to the invite's group through a member row
// the invitee owns.
func (s *SQLiteStore) AcceptGroupInvite(ctx context.Context, inviteID, userID string) (*types.GroupMember, error) {
	inv, err := s.GroupInvites.Get(ctx, inviteID)
	if err != nil {
		return nil, fmt.Errorf("accept group invite: %w", err)
	}
	if inv.InviteeID != userID {
		return nil, fmt.Errorf("accept group invite: %w", ErrNotPermitted)
	}
	if inv.Status != types.InvitePending {
		return nil, fmt.Errorf("accept group invite: %w", ErrInviteClosed)
	}

	existing, err := s.GroupMembers.Membership(ctx, inv.GroupID, userID)
	switch {
	case err == nil:
		if existing.Status != types.MemberActive {
			if err := s.GroupMembers.Update(ctx, existing.ID, types.GroupMemberPatch{Status: types.Ptr(types.MemberActive)}); err != nil {
				return nil, err
			}
		}
		return s.GroupMembers.Get(ctx, existing.ID)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	m := &types.GroupMember{GroupID: inv.GroupID, UserID: userID, Role: types.RoleMember, Status: types.MemberActive}
	if _, err := s.GroupMembers.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ModerateMember lets the group owner change a member's status.
func (s *SQLiteStore) ModerateMember(ctx context.Context, actorID, memberID, status string) error {
	m, err := s.GroupMembers.Get(ctx, memberID)
	if err != nil {
		return fmt.Errorf("moderate member: %w", err)
	}
	g, err := s.Groups.Get(ctx, m.GroupID)
	if err != nil {
		return fmt.Errorf("moderate member: %w", err)
	}
	if g.OwnerID != actorID {
		return fmt.Errorf("moderate member: %w", ErrNotPermitted)
	}
	return s.GroupMembers.Update(ctx, memberID, types.GroupMemberPatch{Status: &status})
}

// AddReaction records userID's reaction to a post at most once. An existing
// live reaction is returned, a tombstoned one is revived.
func (s *SQLiteStore) AddReaction(ctx context.Context, postID, userID, reaction string) (*types.FeedReaction, error) {
	repo := s.FeedReactions
	var out *types.FeedReaction

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		matches, err := repo.query(ctx, tx, "post_id = ? AND user_id = ? AND reaction = ?",
			[]any{postID, userID, reaction}, "deleted ASC, modified_at DESC, id DESC", 1)
		if err != nil {
			return err
		}

		if len(matches) == 1 {
			out = matches[0]
			if !out.Deleted {
				return nil
			}
			now := s.stamp.next()
			if _, err := tx.ExecContext(ctx,
				`UPDATE feed_reactions SET deleted = 0, modified_at = ?, pending_sync = 1 WHERE id = ?`,
				formatTime(now), out.ID); err != nil {
				return fmt.Errorf("revive reaction: %w", err)
			}
			out.Deleted = false
			out.PendingSync = true
			out.ModifiedAt = now
			return nil
		}

		out = &types.FeedReaction{PostID: postID, UserID: userID, Reaction: reaction}
		_, err = repo.insert(ctx, tx, out)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add reaction: %w", err)
	}

	s.invalidate(types.KindFeedReaction)
	return out, nil
}

// RemoveReaction tombstones userID's reaction to a post.
func (s *SQLiteStore) RemoveReaction(ctx context.Context, postID, userID, reaction string) error {
	n, err := s.FeedReactions.softDeleteWhere(ctx, s.db,
		"post_id = ? AND user_id = ? AND reaction = ?", postID, userID, reaction)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("remove reaction: %w", ErrNotFound)
	}
	s.invalidate(types.KindFeedReaction)
	return nil
}
